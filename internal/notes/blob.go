package notes

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
)

// BlobSha returns the git object id of content stored as a blob.
func BlobSha(content string) string {
	h := sha1.New()
	h.Write([]byte("blob " + strconv.Itoa(len(content)) + "\x00"))
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}

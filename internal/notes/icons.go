package notes

import "slices"

// FileIcons lists the icon names a file may use. The first is the default.
var FileIcons = []string{
	"File", "FileCode", "BookMarked",
	"List", "ListChecks", "Check",
	"User", "UserCog", "UserPen",
	"Calendar", "CalendarClock", "CalendarDays", "CalendarCheck2",
	"Code", "Bug", "Terminal", "Binary",
	"Settings", "Settings2",
	"GitBranch", "GitCommit", "GitMerge", "GitPullRequest", "GitPullRequestClosed",
	"Divide", "Omega", "Radical", "Infinity", "Pi", "Atom", "Percent",
	"DraftingCompass", "Ruler",
	"Key", "KeyRound", "KeySquare", "Lock", "LockOpen", "LockKeyhole",
	"ShoppingBag", "ShoppingCart",
	"Cloud", "CloudDrizzle", "CloudFog", "CloudHail", "CloudLightning", "CloudMoon",
	"CloudRain", "CloudSnow", "CloudSun", "Droplets", "Snowflake",
	"Sun", "SunDim", "SunMedium", "Sunrise", "Sunset",
	"Thermometer", "ThermometerSnowflake", "ThermometerSun", "Umbrella", "Wind",
	"Banknote", "Bitcoin", "CreditCard", "DollarSign", "Landmark", "PiggyBank",
	"Wallet", "Coins", "Receipt",
	"TrendingUp", "TrendingDown", "ChartArea", "ChartBar", "ChartLine", "ChartPie", "ChartScatter",
	"Smile", "Frown", "Meh", "Laugh", "Heart", "ThumbsUp", "ThumbsDown", "Star",
	"Wrench", "Hammer", "Drill", "Scissors", "Axe", "Pencil", "Paintbrush",
}

// IconColors lists the color names an icon may use. The first is the default.
var IconColors = []string{"White", "Blue", "Yellow", "Green", "Purple", "Red"}

func validIcon(icon string) bool { return slices.Contains(FileIcons, icon) }

func validIconColor(color string) bool { return slices.Contains(IconColors, color) }

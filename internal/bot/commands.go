package bot

// Commands understood by the bot, without the leading slash.
const (
	CommandStart   = "start"
	CommandCancel  = "cancel"
	CommandProfile = "profile"
	CommandHelp    = "help"
)

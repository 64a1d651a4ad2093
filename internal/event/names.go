package event

// Notification names. They are plain strings so modules can attach to
// names this package does not know about.
const (
	// Session lifecycle.
	NewServer       = "OnNewServer"
	PreConnect      = "OnPreConnect"
	Connect         = "OnConnect"
	ConnectFailed   = "OnConnectFailed"
	ConnectionClose = "OnConnectionClose"
	PostReconnect   = "OnPostReconnect"
	Registered      = "OnRegistered"

	// Wire traffic.
	Parse                 = "OnParse"
	SocketWrite           = "OnSocketWrite"
	IncompleteSocketWrite = "OnIncompleteSocketWrite"
	Ping                  = "OnPING"

	// Outbound convenience sends.
	Privmsg               = "OnPRIVMSG"
	Notice                = "OnNOTICE"
	JoinChannel           = "OnJoinChannel"
	JoinChannelWithKey    = "OnJoinChannelWithKey"
	PartChannel           = "OnPartChannel"
	PartChannelWithReason = "OnPartChannelWithReason"
	Quit                  = "OnQuit"
	QuitWithReason        = "OnQuitWithReason"
	Push                  = "OnPush"
	NickChange            = "OnNickChange"

	// Command router.
	CommandAdd         = "OnCommandAdd"
	CommandAddFirst    = "OnCommandAddFirst"
	CommandAddLast     = "OnCommandAddLast"
	CommandDelete      = "OnCommandDelete"
	CommandDeleteFirst = "OnCommandDeleteFirst"
	CommandDeleteLast  = "OnCommandDeleteLast"
	HandlerError       = "OnHandlerError"

	// Timers.
	AddTimer          = "OnAddTimer"
	TimerDelete       = "OnTimerDelete"
	TimerCallFunction = "OnTimerCallFunction"

	// Modules.
	ModuleLoad       = "OnModuleLoad"
	ModuleUnload     = "OnModuleUnload"
	LoadAllModules   = "OnLoadAllModules"
	UnloadAllModules = "OnUnloadAllModules"

	// Configuration.
	Rehash = "OnRehash"
)

package connectors

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 36973
)

// MessageType is the leading field of every outbound frame.
type MessageType int

const (
	MessageCommand       MessageType = 0
	MessageData          MessageType = 1
	MessageValue         MessageType = 2
	MessageConfirmOrders MessageType = 3
	MessageSubscribe     MessageType = 4
)

type MarketDataType int

const (
	MarketDataAsk          MarketDataType = 0
	MarketDataBid          MarketDataType = 1
	MarketDataLast         MarketDataType = 2
	MarketDataDailyHigh    MarketDataType = 3
	MarketDataDailyLow     MarketDataType = 4
	MarketDataDailyVolume  MarketDataType = 5
	MarketDataLastClose    MarketDataType = 6
	MarketDataOpening      MarketDataType = 7
	MarketDataOpenInterest MarketDataType = 8
	MarketDataSettlement   MarketDataType = 9
	MarketDataUnknown      MarketDataType = 10
)

const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionFlat = "FLAT"
)

const (
	OrderTypeMIT        = "MIT"
	OrderTypeStopMarket = "STOPMARKET"
	OrderTypeStopLimit  = "STOPLIMIT"
	OrderTypeLimit      = "LIMIT"
	OrderTypeMarket     = "MARKET"
)

const (
	CommandPlace           = "Place"
	CommandCancel          = "Cancel"
	CommandChange          = "Change"
	CommandClosePosition   = "ClosePosition"
	CommandCloseStrategy   = "CloseStrategy"
	CommandCancelAllOrders = "CANCELALLORDERS"
	CommandFlatPosition    = "CLOSEPOSITION"
)

const TimeInForceGTC = "GTC"

// Order statuses as reported by the terminal under OrderStatus|<id>.
const (
	StatusWorking         = "Working"
	StatusAccepted        = "Accepted"
	StatusSubmitted       = "Submitted"
	StatusFilled          = "Filled"
	StatusPartiallyFilled = "PartiallyFilled"
	StatusCancelled       = "Cancelled"
	StatusRejected        = "Rejected"
	StatusExpired         = "Expired"
	StatusPending         = "Pending"
	StatusTriggered       = "Triggered"
	StatusAmended         = "Amended"
)

// Table keys.
const (
	KeyATI = "ATI"
)

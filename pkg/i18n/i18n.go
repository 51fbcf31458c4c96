package i18n

import (
	"reflect"
	"strings"
	"sync"
)

// Language type
type Language string

const (
	LangEN   Language = "en"
	LangZHCN Language = "zh-CN"
	LangZHHK Language = "zh-HK"
)

// ParseLanguage maps a config value or Accept-Language tag to a Language.
func ParseLanguage(s string) (Language, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "en", "en-us", "en-gb":
		return LangEN, true
	case "zh-cn", "zh-hans", "zh":
		return LangZHCN, true
	case "zh-hk", "zh-tw", "zh-hant":
		return LangZHHK, true
	}
	return LangEN, false
}

// Header is the Accept-Language value sent to the OpenAPI.
func (l Language) Header() string { return string(l) }

// WireCode is the language enum some quote requests carry.
func (l Language) WireCode() int32 {
	switch l {
	case LangZHCN:
		return 0
	case LangZHHK:
		return 2
	default:
		return 1
	}
}

// PickName returns the name matching the language, falling back to English
// and then to whatever is non-empty.
func (l Language) PickName(cn, en, hk string) string {
	var pick string
	switch l {
	case LangZHCN:
		pick = cn
	case LangZHHK:
		pick = hk
	default:
		pick = en
	}
	for _, s := range []string{pick, en, cn, hk} {
		if s != "" {
			return s
		}
	}
	return ""
}

// Messages holds the daemon's translatable log lines
type Messages struct {
	// System
	Starting         string
	ConfigLoaded     string
	ConfigLoadFailed string
	DBInitFailed     string
	ServerListening  string
	GRPCListening    string
	ShuttingDown     string
	APIServerError   string

	// Gateway
	QuoteConnected     string
	TradeConnected     string
	ConnectFailed      string
	Subscribed         string
	SubscribeFailed    string
	TopicSubscribed    string
	OrderChanged       string
	JournalWriteFailed string
}

var (
	currentLang Language = LangEN
	mu          sync.RWMutex
	messages    *Messages
)

// English messages
var messagesEN = Messages{
	Starting:         "Starting market gateway...",
	ConfigLoaded:     "Config loaded (admin: %s, grpc: %s)",
	ConfigLoadFailed: "Failed to load config: %v",
	DBInitFailed:     "Failed to init database: %v",
	ServerListening:  "Admin API listening on %s",
	GRPCListening:    "gRPC health listening on %s",
	ShuttingDown:     "Shutting down gracefully...",
	APIServerError:   "API server error: %v",

	QuoteConnected:     "Quote gateway connected",
	TradeConnected:     "Trade gateway connected",
	ConnectFailed:      "Gateway connect failed: %v",
	Subscribed:         "Subscribed %d symbols (%s)",
	SubscribeFailed:    "Subscribe failed: %v",
	TopicSubscribed:    "Trade topics subscribed: %v",
	OrderChanged:       "Order %s %s -> %s",
	JournalWriteFailed: "Journal write failed: %v",
}

// Simplified Chinese messages
var messagesZHCN = Messages{
	Starting:         "正在启动行情网关...",
	ConfigLoaded:     "配置已加载（管理：%s，gRPC：%s）",
	ConfigLoadFailed: "加载配置失败：%v",
	DBInitFailed:     "初始化数据库失败：%v",
	ServerListening:  "管理接口监听于 %s",
	GRPCListening:    "gRPC 健康检查监听于 %s",
	ShuttingDown:     "正在优雅关闭...",
	APIServerError:   "API 服务错误：%v",

	QuoteConnected:     "行情网关已连接",
	TradeConnected:     "交易网关已连接",
	ConnectFailed:      "网关连接失败：%v",
	Subscribed:         "已订阅 %d 个标的（%s）",
	SubscribeFailed:    "订阅失败：%v",
	TopicSubscribed:    "交易主题已订阅：%v",
	OrderChanged:       "订单 %s %s -> %s",
	JournalWriteFailed: "写入日志失败：%v",
}

// Traditional Chinese messages
var messagesZHHK = Messages{
	Starting:         "啟動行情網關...",
	ConfigLoaded:     "設定已載入（管理：%s，gRPC：%s）",
	ConfigLoadFailed: "讀取設定失敗：%v",
	DBInitFailed:     "初始化資料庫失敗：%v",
	ServerListening:  "管理介面監聽於 %s",
	GRPCListening:    "gRPC 健康檢查監聽於 %s",
	ShuttingDown:     "正在優雅關閉...",
	APIServerError:   "API 伺服器錯誤：%v",

	QuoteConnected:     "行情網關已連線",
	TradeConnected:     "交易網關已連線",
	ConnectFailed:      "網關連線失敗：%v",
	Subscribed:         "已訂閱 %d 個標的（%s）",
	SubscribeFailed:    "訂閱失敗：%v",
	TopicSubscribed:    "交易主題已訂閱：%v",
	OrderChanged:       "訂單 %s %s -> %s",
	JournalWriteFailed: "寫入日誌失敗：%v",
}

func init() {
	messages = &messagesEN
}

// SetLanguage sets the current language
func SetLanguage(lang Language) {
	mu.Lock()
	defer mu.Unlock()

	currentLang = lang
	switch lang {
	case LangZHCN:
		messages = &messagesZHCN
	case LangZHHK:
		messages = &messagesZHHK
	default:
		messages = &messagesEN
	}
}

// GetLanguage returns the current language
func GetLanguage() Language {
	mu.RLock()
	defer mu.RUnlock()
	return currentLang
}

// M returns the current messages
func M() *Messages {
	mu.RLock()
	defer mu.RUnlock()
	return messages
}

// Get returns specific message by key dynamically using reflection
func Get(key string) string {
	msg := M()
	v := reflect.ValueOf(msg).Elem()
	f := v.FieldByName(key)
	if f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return key
}

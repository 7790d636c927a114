package exchange

// Message catalog keys for every user-visible text of an exchange.
const (
	KeyProgressStarting  = "progress.starting"
	KeyProgressAnalyzing = "progress.model_analyzing"
	KeyProgressTool      = "progress.tool"
	KeyToolFinished      = "tool.finished"
	KeyErrorPrefix       = "error.prefix"
	KeyErrorInterrupted  = "error.interrupted"
	KeyErrorConnection   = "error.connection"
	KeyErrorEmptyInput   = "error.empty_input"
	KeySyncDefault       = "sync.default_success"
	KeyStreamCompleted   = "stream.completed"
)

// Catalog renders user-visible texts. *i18n.Translator satisfies it.
type Catalog interface {
	T(key string, args ...interface{}) string
}

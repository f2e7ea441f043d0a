package solana

// LogNotification is a logsSubscribe message for a watched program.
type LogNotification struct {
	Signature string
	Slot      int64
	Err       interface{}
}

package rediskey

import "fmt"

const (
	SequencePrefix = "seq"
	RealtimePrefix = "realtime"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildSequenceKey returns "seq:{prefix}:{day}"
func BuildSequenceKey(prefix, day string) string {
	return NamespaceKey(SequencePrefix, fmt.Sprintf("%s:%s", prefix, day))
}

// BuildRealtimeChannel returns "realtime:{channel}" unless channel is already namespaced.
func BuildRealtimeChannel(channel string) string {
	if len(channel) > len(RealtimePrefix) && channel[:len(RealtimePrefix)+1] == RealtimePrefix+":" {
		return channel
	}
	return NamespaceKey(RealtimePrefix, channel)
}

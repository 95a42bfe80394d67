package redis

// DefaultPrefix namespaces every key and channel this service writes.
const DefaultPrefix = "trivia"

type keys struct {
	prefix string
}

func newKeys(prefix string) keys {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return keys{prefix: prefix}
}

func (k keys) quiz(quizID string) string {
	return k.prefix + ":quiz:" + quizID
}

func (k keys) roomLive(roomID string) string {
	return k.prefix + ":room:" + roomID + ":live"
}

func (k keys) roomCode(code string) string {
	return k.prefix + ":code:" + code
}

func (k keys) results(roomID string) string {
	return k.prefix + ":room:" + roomID + ":results"
}

// ResultsChannel is the pub/sub channel that receives a room's final standings.
func ResultsChannel(prefix, roomID string) string {
	return newKeys(prefix).results(roomID)
}

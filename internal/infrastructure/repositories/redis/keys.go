package redis

import "edgestream/internal/core/domain"

const keyPrefix = "edgestream:"

func sessionKey(id domain.SessionID) string {
	return keyPrefix + "session:" + string(id)
}

func sessionIndexKey() string {
	return keyPrefix + "sessions:lastseen"
}

func bandwidthKey(id domain.SessionID) string {
	return keyPrefix + "bw:" + string(id)
}

func eventsKey(id domain.SessionID) string {
	return keyPrefix + "events:" + string(id)
}

func eventsTotalKey() string {
	return keyPrefix + "events:total"
}

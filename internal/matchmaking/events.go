package matchmaking

// Every event below is published with the pool as subject.

type PlayerJoinQueue struct {
	Player int64 `json:"player"`
}

type PlayerLeaveQueue struct {
	Player int64 `json:"player"`
}

type PlayerConfirmQueue struct {
	Player int64 `json:"player"`
}

// QueueLocked starts the confirmation window.
type QueueLocked struct {
	Players  []int64 `json:"players"`
	Deadline int64   `json:"deadline"`
}

// QueueUnlocked reports a failed confirmation window.
type QueueUnlocked struct {
	Evicted []int64 `json:"evicted"`
}

// QueueConfirmed is published once every member confirmed.
type QueueConfirmed struct{}

type DraftStarted struct {
	Match     int64 `json:"match"`
	CaptainA  int64 `json:"captain_a"`
	CaptainB  int64 `json:"captain_b"`
	NextQueue int64 `json:"next_queue"`
}

type PlayerPicked struct {
	Player  int64 `json:"player"`
	Captain int64 `json:"captain"`
	Team    int64 `json:"team"`
}

type DraftCompleted struct {
	Match int64 `json:"match"`
}

package models

// SyncMeta holds the columns every synchronized record carries. CreatedAt and
// UpdatedAt are logical clock values (milliseconds since epoch) assigned by
// the writer, so gorm's automatic timestamping is switched off.
type SyncMeta struct {
	ID        string `gorm:"primaryKey" json:"id"`
	OwnerID   string `gorm:"not null;index;index:,composite:owner_synced,priority:1" json:"owner_id"`
	CreatedAt int64  `gorm:"not null;autoCreateTime:false" json:"created_at"`
	UpdatedAt int64  `gorm:"not null;autoUpdateTime:false" json:"updated_at"`
	Synced    bool   `gorm:"not null;index:,composite:owner_synced,priority:2" json:"synced"`
}

// Meta returns the embedded metadata so generic code can reach it through
// any record type.
func (m *SyncMeta) Meta() *SyncMeta { return m }

// Record is the constraint satisfied by pointers to every synchronized
// record kind.
type Record[T any] interface {
	*T
	Meta() *SyncMeta
	Kind() Kind
	MarshalFields() ([]byte, error)
	UnmarshalFields(data []byte) error
}

// RemoteWins decides a Last-Write-Wins merge between the local copy (nil if
// absent) and an incoming remote copy stamped remoteUpdatedAt.
//
// The strictly newer copy wins. On a tie the remote copy wins only if the
// local copy is already synced; an unsynced local copy with an equal stamp
// is kept so it can still be pushed.
func RemoteWins(local *SyncMeta, remoteUpdatedAt int64) bool {
	if local == nil {
		return true
	}
	if remoteUpdatedAt != local.UpdatedAt {
		return remoteUpdatedAt > local.UpdatedAt
	}
	return local.Synced
}

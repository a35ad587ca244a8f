package netdisk

import "context"

// ShareHandle identifies the content behind a third-party share link after
// resolution: the share itself plus the entries it exposes.
type ShareHandle struct {
	ShareCode   string
	ReceiveCode string
	FileIDs     []string
	Names       []string
}

// TransferResult describes where a transfer landed.
type TransferResult struct {
	DirID string
	Names []string
}

// ShareLink is a freshly published long-lived share.
type ShareLink struct {
	URL         string
	ShareCode   string
	ReceiveCode string
}

// Entry is one file or folder in a remote directory listing.
type Entry struct {
	ID       string
	Name     string
	IsFolder bool
}

// Gateway is the narrow capability surface the engine and the maintenance
// jobs use to talk to the remote storage service. Implementations must
// honor ctx deadlines; failed calls return *RemoteError where the vendor
// supplied a code/message pair.
type Gateway interface {
	Resolve(ctx context.Context, shareURL, accessCode string) (*ShareHandle, error)
	Transfer(ctx context.Context, handle *ShareHandle, dirID string) (*TransferResult, error)
	CreateShare(ctx context.Context, result *TransferResult) (*ShareLink, error)
	ListDir(ctx context.Context, dirID string) ([]Entry, error)
	Delete(ctx context.Context, ids []string) error
	EmptyTrash(ctx context.Context, password string) error
	EnsureDir(ctx context.Context, path string) (string, error)
}

package exception

import "github.com/yanun0323/errors"

// Network errors: archive probe/download or REST backfill failure. Logged
// and the specific day/page is skipped; outer loops continue.
var (
	ErrArchiveProbe    = errors.New("network: latest archive day probe failed")
	ErrArchiveDownload = errors.New("network: archive download failed")
	ErrRestRequest     = errors.New("network: rest request failed")
	ErrStreamDecode    = errors.New("network: stream message decode failed")
)

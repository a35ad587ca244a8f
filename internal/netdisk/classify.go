package netdisk

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Class is the classifier's verdict on a failed remote call.
type Class int

const (
	ClassTransient Class = iota
	ClassAlreadyExists
	ClassAlreadyDeleted
	ClassQuotaExceeded
	ClassInvalidLink
	ClassUnknown
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassAlreadyExists:
		return "already_exists"
	case ClassAlreadyDeleted:
		return "already_deleted"
	case ClassQuotaExceeded:
		return "quota_exceeded"
	case ClassInvalidLink:
		return "invalid_link"
	default:
		return "unknown"
	}
}

// Vendor error codes observed in the wild.
const (
	codeAlreadyReceived = 4200045 // files already saved to the target dir
	codeSourceDeleted   = 231011  // source entries gone on the remote side
	codeShareExpired    = 4100008 // share link expired or withdrawn
	codeQuotaExceeded   = 4200042 // account storage quota exhausted
)

// Classify maps any error from a Gateway call onto a Class. It is total:
// every error yields a verdict, so the pipeline's control flow stays
// deterministic. Timeouts and cancellations count as transient.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}

	var remote *RemoteError
	if !errors.As(err, &remote) {
		return ClassUnknown
	}

	switch remote.Code {
	case codeAlreadyReceived:
		return ClassAlreadyExists
	case codeSourceDeleted:
		return ClassAlreadyDeleted
	case codeShareExpired:
		return ClassInvalidLink
	case codeQuotaExceeded:
		return ClassQuotaExceeded
	}

	msg := strings.ToLower(remote.Message)
	switch {
	case strings.Contains(msg, "already received") || strings.Contains(remote.Message, "已接收"):
		return ClassAlreadyExists
	case strings.Contains(msg, "already deleted") || strings.Contains(remote.Message, "已删除"):
		return ClassAlreadyDeleted
	case strings.Contains(msg, "quota") || strings.Contains(msg, "insufficient space") || strings.Contains(remote.Message, "空间不足"):
		return ClassQuotaExceeded
	case strings.Contains(msg, "link expired") || strings.Contains(msg, "invalid link") || strings.Contains(remote.Message, "链接已失效"):
		return ClassInvalidLink
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "try again later") || strings.Contains(msg, "too many requests"):
		return ClassTransient
	}
	return ClassUnknown
}

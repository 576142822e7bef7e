package framer

import (
	"fmt"
	"strings"
)

// newCodec dispatches on the producer-declared content-type per spec §4.B.
func newCodec(contentType string) (Codec, error) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	// strip any parameters, e.g. "audio/ogg; codecs=opus"
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}

	switch ct {
	case "application/ogg", "audio/ogg", "video/ogg":
		return newOggCodec(), nil
	case "audio/mpeg":
		return newMP3Codec(), nil
	case "audio/aac", "audio/aacp":
		return newAACCodec(), nil
	case "video/webm", "audio/webm":
		return newWebMCodec(), nil
	case "video/mp2t", "application/mpeg-ts", "video/mpeg-ts":
		return newMPEGTSCodec(), nil
	case "text/plain", "text/csv", "text/xml":
		return newTextCodec(), nil
	default:
		if strings.HasPrefix(ct, "text/") {
			return newTextCodec(), nil
		}
		return nil, fmt.Errorf("framer: unsupported content-type %q", contentType)
	}
}

// FormatTypeForContentType maps a producer-declared content-type to the
// Source.format_type enum, using the same normalization and table as
// newCodec. Returns FormatUnknown for a content-type newCodec would reject.
func FormatTypeForContentType(contentType string) FormatType {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	switch ct {
	case "application/ogg", "audio/ogg", "video/ogg":
		return FormatOgg
	case "audio/mpeg":
		return FormatMP3
	case "audio/aac", "audio/aacp":
		return FormatAAC
	case "video/webm", "audio/webm":
		return FormatWebM
	case "video/mp2t", "application/mpeg-ts", "video/mpeg-ts":
		return FormatMPEGTS
	case "text/plain", "text/csv", "text/xml":
		return FormatText
	default:
		if strings.HasPrefix(ct, "text/") {
			return FormatText
		}
		return FormatUnknown
	}
}

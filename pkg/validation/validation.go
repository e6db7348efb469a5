package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// IDRegex validates channel, transport, producer and consumer ids.
	IDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// ParticipantIDRegex validates participant ids.
	ParticipantIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateChannelID validates a channel id.
func ValidateChannelID(channelID string) error {
	if channelID == "" {
		return fmt.Errorf("channel ID is required")
	}
	if len(channelID) > 100 {
		return fmt.Errorf("channel ID is too long (max 100 characters)")
	}
	if !IDRegex.MatchString(channelID) {
		return fmt.Errorf("invalid channel ID format")
	}
	return nil
}

// ValidateParticipantID validates a participant id.
func ValidateParticipantID(participantID string) error {
	if participantID == "" {
		return fmt.Errorf("participant ID is required")
	}
	if len(participantID) > 100 {
		return fmt.Errorf("participant ID is too long (max 100 characters)")
	}
	if !ParticipantIDRegex.MatchString(participantID) {
		return fmt.Errorf("invalid participant ID format")
	}
	return nil
}

// ValidateTransportID validates a transport id.
func ValidateTransportID(transportID string) error {
	if transportID == "" {
		return fmt.Errorf("transport ID is required")
	}
	if len(transportID) > 100 {
		return fmt.Errorf("transport ID is too long (max 100 characters)")
	}
	if !IDRegex.MatchString(transportID) {
		return fmt.Errorf("invalid transport ID format")
	}
	return nil
}

// ValidateProducerID validates a producer id.
func ValidateProducerID(producerID string) error {
	if producerID == "" {
		return fmt.Errorf("producer ID is required")
	}
	if len(producerID) > 100 {
		return fmt.Errorf("producer ID is too long (max 100 characters)")
	}
	if !IDRegex.MatchString(producerID) {
		return fmt.Errorf("invalid producer ID format")
	}
	return nil
}

// ValidateConsumerID validates a consumer id.
func ValidateConsumerID(consumerID string) error {
	if consumerID == "" {
		return fmt.Errorf("consumer ID is required")
	}
	if len(consumerID) > 100 {
		return fmt.Errorf("consumer ID is too long (max 100 characters)")
	}
	if !IDRegex.MatchString(consumerID) {
		return fmt.Errorf("invalid consumer ID format")
	}
	return nil
}

// ValidateMediaKind validates a media kind.
func ValidateMediaKind(kind string) error {
	if kind != "audio" && kind != "video" {
		return fmt.Errorf("invalid media kind (must be audio or video)")
	}
	return nil
}

// ValidateDisplayName validates a participant display name.
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("display name is required")
	}
	if utf8.RuneCountInString(name) > 100 {
		return fmt.Errorf("display name is too long (max 100 characters)")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("display name contains invalid characters")
	}
	return nil
}

// ValidateURL validates a signaling URL.
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid URL scheme (must be http, https, ws, or wss)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateAudioLevel validates a normalized audio energy sample.
func ValidateAudioLevel(level float64) error {
	if level < 0 || level > 1 {
		return fmt.Errorf("audio level must be in [0, 1]")
	}
	return nil
}

// ValidateBitrate validates a bitrate value in kbps.
func ValidateBitrate(bitrate int) error {
	if bitrate < 10 {
		return fmt.Errorf("bitrate must be at least 10 kbps")
	}
	if bitrate > 10000 {
		return fmt.Errorf("bitrate is too high (max 10000 kbps)")
	}
	return nil
}

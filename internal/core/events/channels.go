package events

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"meetrelay/internal/core/domain"
	"meetrelay/pkg/validation"
)

// Namespace is the first dot-separated segment of a channel name.
type Namespace string

const (
	NamespaceMeeting Namespace = "meeting"
	NamespacePeer    Namespace = "peer"
	NamespaceReports Namespace = "reports"
)

// ReportsChannel is the unscoped report feed.
const ReportsChannel = "reports"

var reportableTypePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_\\]*$`)

// Channel is a parsed channel name.
type Channel struct {
	Namespace      Namespace
	MeetingID      domain.MeetingID
	PeerID         domain.PeerID
	ReportableType string
	ReportableID   int64
}

func MeetingChannel(id domain.MeetingID) string {
	return fmt.Sprintf("meeting.%d", id)
}

func PeerChannel(id domain.PeerID) string {
	return "peer." + string(id)
}

func ReportableChannel(reportableType string, reportableID int64) string {
	return fmt.Sprintf("reports.%s.%d", reportableType, reportableID)
}

// ParseChannel parses meeting.<int>, peer.<string>, reports and
// reports.<type>.<int>. Anything else yields ErrMalformedChannel.
func ParseChannel(name string) (Channel, error) {
	if name == ReportsChannel {
		return Channel{Namespace: NamespaceReports}, nil
	}

	ns, rest, ok := strings.Cut(name, ".")
	if !ok || rest == "" {
		return Channel{}, fmt.Errorf("%w: %q", domain.ErrMalformedChannel, name)
	}

	switch Namespace(ns) {
	case NamespaceMeeting:
		id, err := parsePositiveInt(rest)
		if err != nil {
			return Channel{}, fmt.Errorf("%w: %q", domain.ErrMalformedChannel, name)
		}
		return Channel{Namespace: NamespaceMeeting, MeetingID: domain.MeetingID(id)}, nil

	case NamespacePeer:
		if validation.ValidatePeerID(rest) != nil {
			return Channel{}, fmt.Errorf("%w: %q", domain.ErrMalformedChannel, name)
		}
		return Channel{Namespace: NamespacePeer, PeerID: domain.PeerID(rest)}, nil

	case NamespaceReports:
		typ, idPart, ok := strings.Cut(rest, ".")
		if !ok || !reportableTypePattern.MatchString(typ) {
			return Channel{}, fmt.Errorf("%w: %q", domain.ErrMalformedChannel, name)
		}
		id, err := parsePositiveInt(idPart)
		if err != nil {
			return Channel{}, fmt.Errorf("%w: %q", domain.ErrMalformedChannel, name)
		}
		return Channel{Namespace: NamespaceReports, ReportableType: typ, ReportableID: id}, nil
	}

	return Channel{}, fmt.Errorf("%w: unknown namespace %q", domain.ErrMalformedChannel, ns)
}

// Name renders the channel back to its wire form.
func (c Channel) Name() string {
	switch c.Namespace {
	case NamespaceMeeting:
		return MeetingChannel(c.MeetingID)
	case NamespacePeer:
		return PeerChannel(c.PeerID)
	case NamespaceReports:
		if c.ReportableType == "" {
			return ReportsChannel
		}
		return ReportableChannel(c.ReportableType, c.ReportableID)
	}
	return ""
}

func parsePositiveInt(s string) (int64, error) {
	// strconv accepts a leading sign; the grammar does not.
	if s == "" || s[0] < '0' || s[0] > '9' {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	// Only the canonical spelling names a channel that events are published on.
	if len(s) > 1 && s[0] == '0' {
		return 0, fmt.Errorf("leading zero in id: %q", s)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("id must be positive: %d", n)
	}
	return n, nil
}

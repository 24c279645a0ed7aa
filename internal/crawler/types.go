package crawler

import (
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// DateLayout is the timestamp layout written to the dataset.
const DateLayout = "2006-01-02 15:04:05"

// ServiceCenter identifies the USCIS service center that issued a notice.
// The zero value means the center could not be determined.
type ServiceCenter string

// Known service centers.
const (
	ServiceCenterNone ServiceCenter = ""
	ServiceCenterSRC  ServiceCenter = "SRC"
	ServiceCenterLIN  ServiceCenter = "LIN"
)

// ParseServiceCenter maps a code to a ServiceCenter. Qualified names such as
// "ServiceCenterEnum.SRC" are accepted. Unknown codes yield false.
func ParseServiceCenter(s string) (ServiceCenter, bool) {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		s = s[i+1:]
	}
	switch ServiceCenter(strings.ToUpper(s)) {
	case ServiceCenterSRC:
		return ServiceCenterSRC, true
	case ServiceCenterLIN:
		return ServiceCenterLIN, true
	default:
		return ServiceCenterNone, false
	}
}

// Valid reports whether the center is one of the known codes.
func (c ServiceCenter) Valid() bool {
	return c == ServiceCenterSRC || c == ServiceCenterLIN
}

// MarshalText writes the center code, or nothing when absent.
func (c ServiceCenter) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return []byte{}, nil
	}
	return []byte(c), nil
}

// UnmarshalText is lenient: unknown codes decode as absent.
func (c *ServiceCenter) UnmarshalText(b []byte) error {
	center, _ := ParseServiceCenter(string(b))
	*c = center
	return nil
}

// Date is an optional timestamp. Valid is false when the value is absent.
type Date struct {
	Time  time.Time
	Valid bool
}

// NewDate wraps t as a present Date.
func NewDate(t time.Time) Date {
	return Date{Time: t, Valid: true}
}

// Before reports whether both dates are present and d is strictly before other.
func (d Date) Before(other Date) bool {
	return d.Valid && other.Valid && d.Time.Before(other.Time)
}

// MarshalText renders the date with DateLayout, or an empty cell when absent.
func (d Date) MarshalText() ([]byte, error) {
	if !d.Valid {
		return []byte{}, nil
	}
	return []byte(d.Time.Format(DateLayout)), nil
}

// UnmarshalText accepts any layout dateparse understands. Unparseable
// values decode as absent so a single bad cell never poisons a load.
func (d *Date) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || strings.EqualFold(s, "nat") || strings.EqualFold(s, "nan") {
		*d = Date{}
		return nil
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		*d = Date{}
		return nil
	}
	*d = NewDate(t)
	return nil
}

func (d Date) String() string {
	if !d.Valid {
		return "<absent>"
	}
	return d.Time.Format(DateLayout)
}

// Record is one extracted receipt notice. Filename is the identity key.
type Record struct {
	Filename      string        `csv:"filename"`
	NIW           bool          `csv:"niw_flag"`
	ReceivedDate  Date          `csv:"received_date"`
	PriorityDate  Date          `csv:"priority_date"`
	NoticeDate    Date          `csv:"notice_date"`
	ServiceCenter ServiceCenter `csv:"service_center"`
}

func (r Record) String() string {
	return fmt.Sprintf("%s niw=%t received=%s priority=%s notice=%s center=%q",
		r.Filename, r.NIW, r.ReceivedDate, r.PriorityDate, r.NoticeDate, r.ServiceCenter)
}

// WorkItem is a remote document still missing from the dataset.
type WorkItem struct {
	URL           string
	RawName       string
	ConvertedName string
	NeedsDownload bool
	NeedsConvert  bool
}

// Plan is the outcome of reconciling remote documents against local state.
type Plan struct {
	// ToProcess holds every remote document absent from the dataset.
	ToProcess []WorkItem
	Remote    int
	Persisted int
	Convert   int
	Download  int
}

// DownloadList returns the URLs that must be fetched.
func (p Plan) DownloadList() []string {
	var out []string
	for _, item := range p.ToProcess {
		if item.NeedsDownload {
			out = append(out, item.URL)
		}
	}
	return out
}

// RunStats summarises a pipeline run.
type RunStats struct {
	RunID       string
	Remote      int
	Persisted   int
	Scheduled   int
	Downloaded  int
	Converted   int
	Extracted   int
	Skipped     int
	Failed      int
	RowsWritten int
	Duplicates  int
	Flushes     int
	Duration    time.Duration
}

package markethours

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Calendar is the exchange holiday table. The list is configuration data
// loaded from a YAML file at startup and reloadable at runtime; nothing in
// the scheduler hard-codes specific years.
type Calendar struct {
	mu   sync.RWMutex
	days map[string]struct{} // "2006-01-02" in IST
}

type holidayFile struct {
	Holidays []string `yaml:"holidays"`
}

// NewCalendar returns an empty calendar (weekends still resolve to CLOSED).
func NewCalendar() *Calendar {
	return &Calendar{days: make(map[string]struct{})}
}

// LoadCalendar reads the holiday table from a YAML file of the form:
//
//	holidays:
//	  - "2026-01-26"  # Republic Day
func LoadCalendar(path string) (*Calendar, error) {
	c := NewCalendar()
	if err := c.Reload(path); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload replaces the table from the file. On parse failure the previous
// table is kept and the error returned.
func (c *Calendar) Reload(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("holiday table: read %s: %w", path, err)
	}
	var f holidayFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("holiday table: parse %s: %w", path, err)
	}
	days := make(map[string]struct{}, len(f.Holidays))
	for _, d := range f.Holidays {
		if _, err := time.ParseInLocation("2006-01-02", d, IST); err != nil {
			return fmt.Errorf("holiday table: bad date %q: %w", d, err)
		}
		days[d] = struct{}{}
	}
	c.mu.Lock()
	c.days = days
	c.mu.Unlock()
	return nil
}

// Add inserts a single holiday date. Used by tests and ad-hoc overrides.
func (c *Calendar) Add(t time.Time) {
	c.mu.Lock()
	c.days[t.In(IST).Format("2006-01-02")] = struct{}{}
	c.mu.Unlock()
}

// IsHoliday returns true if the date (in IST) is a listed holiday.
func (c *Calendar) IsHoliday(t time.Time) bool {
	key := t.In(IST).Format("2006-01-02")
	c.mu.RLock()
	_, ok := c.days[key]
	c.mu.RUnlock()
	return ok
}

// Len returns the number of listed holidays.
func (c *Calendar) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.days)
}

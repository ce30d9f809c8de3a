package tasks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// LegacyFileName is the single-file JSON store that predates the
// per-list iCalendar files.
const LegacyFileName = "data.json"

// LegacyData is the content of the legacy JSON file.
type LegacyData struct {
	Lists []TaskListData
	Tags  []string
	Tasks []TaskData
}

// flexBool accepts true/false, 0/1 and their string forms.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(bytes.TrimSpace(data), `"`))
	switch s {
	case "", "null":
		*b = false
		return nil
	}
	if v, err := strconv.ParseBool(s); err == nil {
		*b = flexBool(v)
		return nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		*b = n != 0
		return nil
	}
	return fmt.Errorf("invalid boolean %s", data)
}

// flexInt accepts numbers and numeric strings.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(bytes.TrimSpace(data), `"`))
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %s", data)
	}
	*n = flexInt(f)
	return nil
}

type legacyList struct {
	Color         string   `json:"color"`
	Deleted       flexBool `json:"deleted"`
	Name          string   `json:"name"`
	ShowCompleted flexBool `json:"show_completed"`
	Synced        flexBool `json:"synced"`
	UID           string   `json:"uid"`
}

type legacyTask struct {
	Color           string   `json:"color"`
	Completed       flexBool `json:"completed"`
	ChangedAt       string   `json:"changed_at"`
	CreatedAt       string   `json:"created_at"`
	Deleted         flexBool `json:"deleted"`
	DueDate         string   `json:"due_date"`
	StartDate       string   `json:"start_date"`
	Expanded        flexBool `json:"expanded"`
	ListUID         string   `json:"list_uid"`
	Notes           string   `json:"notes"`
	Notified        flexBool `json:"notified"`
	Parent          string   `json:"parent"`
	PercentComplete flexInt  `json:"percent_complete"`
	Priority        flexInt  `json:"priority"`
	RRule           string   `json:"rrule"`
	Tags            []string `json:"tags"`
	Text            string   `json:"text"`
	Toolbar         flexBool `json:"toolbar_shown"`
	Trash           flexBool `json:"trash"`
	UID             string   `json:"uid"`
}

type legacyFile struct {
	Lists []legacyList `json:"lists"`
	Tags  []string     `json:"tags"`
	Tasks []legacyTask `json:"tasks"`
}

func stateOf(deleted flexBool) State {
	if deleted {
		return Deleted
	}
	return Active
}

// DecodeLegacy parses the legacy JSON document.
func DecodeLegacy(data []byte) (*LegacyData, error) {
	var f legacyFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode legacy data: %w", err)
	}

	out := &LegacyData{Tags: f.Tags}
	for _, l := range f.Lists {
		out.Lists = append(out.Lists, TaskListData{
			Color:         l.Color,
			State:         stateOf(l.Deleted),
			Name:          l.Name,
			ShowCompleted: bool(l.ShowCompleted),
			Synced:        bool(l.Synced),
			UID:           l.UID,
		})
	}
	for _, t := range f.Tasks {
		out.Tasks = append(out.Tasks, TaskData{
			Color:           t.Color,
			Completed:       bool(t.Completed),
			CreatedAt:       t.CreatedAt,
			ChangedAt:       t.ChangedAt,
			State:           stateOf(t.Deleted),
			DueDate:         t.DueDate,
			StartDate:       t.StartDate,
			Expanded:        bool(t.Expanded),
			ListUID:         t.ListUID,
			Notes:           t.Notes,
			Notified:        bool(t.Notified),
			Parent:          t.Parent,
			PercentComplete: int(t.PercentComplete),
			Priority:        int(t.Priority),
			RRule:           t.RRule,
			Tags:            t.Tags,
			Text:            t.Text,
			Toolbar:         bool(t.Toolbar),
			Trash:           bool(t.Trash),
			UID:             t.UID,
		})
	}
	return out, nil
}

// LoadLegacy reads the legacy JSON file at path.
func LoadLegacy(path string) (*LegacyData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy data: %w", err)
	}
	return DecodeLegacy(data)
}

// SaveLegacy writes d in the legacy format with booleans as true/false.
func SaveLegacy(path string, d *LegacyData) error {
	f := legacyFile{Tags: d.Tags}
	if f.Tags == nil {
		f.Tags = []string{}
	}
	f.Lists = make([]legacyList, 0, len(d.Lists))
	for _, l := range d.Lists {
		f.Lists = append(f.Lists, legacyList{
			Color:         l.Color,
			Deleted:       l.State == Deleted,
			Name:          l.Name,
			ShowCompleted: flexBool(l.ShowCompleted),
			Synced:        flexBool(l.Synced),
			UID:           l.UID,
		})
	}
	f.Tasks = make([]legacyTask, 0, len(d.Tasks))
	for _, t := range d.Tasks {
		tags := t.Tags
		if tags == nil {
			tags = []string{}
		}
		f.Tasks = append(f.Tasks, legacyTask{
			Color:           t.Color,
			Completed:       flexBool(t.Completed),
			ChangedAt:       t.ChangedAt,
			CreatedAt:       t.CreatedAt,
			Deleted:         t.State == Deleted,
			DueDate:         t.DueDate,
			StartDate:       t.StartDate,
			Expanded:        flexBool(t.Expanded),
			ListUID:         t.ListUID,
			Notes:           t.Notes,
			Notified:        flexBool(t.Notified),
			Parent:          t.Parent,
			PercentComplete: flexInt(t.PercentComplete),
			Priority:        flexInt(t.Priority),
			RRule:           t.RRule,
			Tags:            tags,
			Text:            t.Text,
			Toolbar:         flexBool(t.Toolbar),
			Trash:           flexBool(t.Trash),
			UID:             t.UID,
		})
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode legacy data: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write legacy data: %w", err)
	}
	return nil
}

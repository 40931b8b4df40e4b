package booking

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type BayClass int

const (
	BayOther BayClass = iota
	BayGroundLevel
	BayGroundLevelSmall
)

func (c BayClass) String() string {
	switch c {
	case BayGroundLevel:
		return "ground_level"
	case BayGroundLevelSmall:
		return "ground_level_small"
	default:
		return "other"
	}
}

type AlertClass int

const (
	AlertOther AlertClass = iota
	AlertNoBaysAvailable
)

func (c AlertClass) String() string {
	if c == AlertNoBaysAvailable {
		return "no_bays_available"
	}
	return "other"
}

// Classifier maps the portal's free-text labels onto the states the loop reasons about.
type Classifier interface {
	ClassifyBay(label string) BayClass
	ClassifyAlert(label string) AlertClass
}

// TextClassifier matches on substrings of the bay label and the exact banner text.
// The level marker and the size qualifier live in the same label, so a ground-level
// bay only counts when it is not also marked small.
type TextClassifier struct {
	GroundMarker  string
	SmallMarker   string
	NoBaysMessage string
}

func DefaultClassifier() TextClassifier {
	return TextClassifier{
		GroundMarker:  "Ground",
		SmallMarker:   "small",
		NoBaysMessage: "No bays available",
	}
}

func (c TextClassifier) ClassifyBay(label string) BayClass {
	if !strings.Contains(label, c.GroundMarker) {
		return BayOther
	}
	if strings.Contains(label, c.SmallMarker) {
		return BayGroundLevelSmall
	}
	return BayGroundLevel
}

func (c TextClassifier) ClassifyAlert(label string) AlertClass {
	if label == c.NoBaysMessage {
		return AlertNoBaysAvailable
	}
	return AlertOther
}

// alertSelectors cover the ASP.NET MVC validation output and Kendo notifications
// the portal renders when a submission is rejected.
var alertSelectors = []string{
	".validation-summary-errors li",
	".field-validation-error",
	".alert-danger",
	".k-notification-error",
}

// ScanAlerts returns the non-empty texts of alert elements in html, in document order.
func ScanAlerts(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	var out []string
	doc.Find(strings.Join(alertSelectors, ", ")).Each(func(_ int, s *goquery.Selection) {
		t := strings.Join(strings.Fields(s.Text()), " ")
		if t != "" {
			out = append(out, t)
		}
	})
	return out, nil
}

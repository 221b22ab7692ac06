package extract

import (
	"regexp"

	"github.com/Volpestyle/basic-budget-sub003/constants"
	"github.com/Volpestyle/basic-budget-sub003/internal/entity"
)

const (
	amountExpr = `\$?[^\S\n]?(?:\d{1,3}(?:,\d{3})+|\d+)\.\d{2}`
	dateExpr   = `\d{1,2}/\d{1,2}/\d{2,4}|\d{4}-\d{2}-\d{2}|\d{1,2}-\d{1,2}-\d{4}`
	nameExpr   = `[A-Za-z][A-Za-z.,'&\- ]{1,60}?`

	// gap between a label and its value on the same line
	labelGap = `[^\S\n]*[:|#]?[^\n\d$]{0,40}?`
)

// labelPattern is one way a field can be labelled. Group selects the capture
// holding the value.
type labelPattern struct {
	label string
	re    *regexp.Regexp
	group int
}

type fieldRule struct {
	name     string
	kind     entity.ValueKind
	patterns []labelPattern
	// skipYTD drops hits on lines labelled year-to-date.
	skipYTD bool
}

func moneyLabel(label, expr string) labelPattern {
	return labelPattern{label: label, re: regexp.MustCompile(`(?i)` + expr + labelGap + `(` + amountExpr + `)`), group: 1}
}

func dateLabel(label, expr string) labelPattern {
	return labelPattern{label: label, re: regexp.MustCompile(`(?i)` + expr + `[^\S\n]*[:|]?[^\n\d]{0,20}?(` + dateExpr + `)`), group: 1}
}

func nameLabel(label, expr string) labelPattern {
	return labelPattern{label: label, re: regexp.MustCompile(`(?i)` + expr + `[^\S\n]*[:|][^\S\n]*(` + nameExpr + `)(?:[^\S\n]{2,}|\n|$)`), group: 1}
}

var periodRange = regexp.MustCompile(`(?i)(?:pay\s+)?period[^\n\d]{0,20}?(` + dateExpr + `)[^\S\n]*(?:-|to|thru|through)[^\S\n]*(` + dateExpr + `)`)

var (
	grossPayRule = fieldRule{
		name: "gross_pay",
		kind: entity.KindMoney,
		patterns: []labelPattern{
			moneyLabel("Gross Pay", `gross\s+pay`),
			moneyLabel("Gross Earnings", `gross\s+earnings`),
			moneyLabel("Total Gross", `total\s+gross`),
			moneyLabel("Total Earnings", `total\s+earnings`),
			moneyLabel("Gross", `\bgross\b`),
		},
		skipYTD: true,
	}
	netPayRule = fieldRule{
		name: "net_pay",
		kind: entity.KindMoney,
		patterns: []labelPattern{
			moneyLabel("Net Pay", `net\s+pay`),
			moneyLabel("Net Amount", `net\s+amount`),
			moneyLabel("Take Home", `take[\s-]+home(?:\s+pay)?`),
			moneyLabel("Net Check", `net\s+check`),
			moneyLabel("Net", `\bnet\b`),
		},
		skipYTD: true,
	}
	ytdGrossRule = fieldRule{
		name: "ytd_gross_pay",
		kind: entity.KindMoney,
		patterns: []labelPattern{
			moneyLabel("YTD Gross", `ytd\s+gross(?:\s+pay)?`),
			moneyLabel("Gross YTD", `gross(?:\s+pay)?\s+ytd`),
			moneyLabel("Year to Date Gross", `year[\s-]+to[\s-]+date\s+gross`),
			{label: "Gross Pay", re: regexp.MustCompile(`(?i)gross\s+pay` + labelGap + amountExpr + `[^\S\n]+(` + amountExpr + `)`), group: 1},
		},
	}
	ytdNetRule = fieldRule{
		name: "ytd_net_pay",
		kind: entity.KindMoney,
		patterns: []labelPattern{
			moneyLabel("YTD Net", `ytd\s+net(?:\s+pay)?`),
			moneyLabel("Net YTD", `net(?:\s+pay)?\s+ytd`),
			moneyLabel("Year to Date Net", `year[\s-]+to[\s-]+date\s+net`),
			{label: "Net Pay", re: regexp.MustCompile(`(?i)net\s+pay` + labelGap + amountExpr + `[^\S\n]+(` + amountExpr + `)`), group: 1},
		},
	}
	periodStartRule = fieldRule{
		name: "pay_period_start",
		kind: entity.KindDate,
		patterns: []labelPattern{
			{label: "Pay Period", re: periodRange, group: 1},
			dateLabel("Period Beginning", `period\s+(?:beginning|begin|start(?:ing)?)`),
			dateLabel("Start Date", `start\s+date`),
		},
	}
	periodEndRule = fieldRule{
		name: "pay_period_end",
		kind: entity.KindDate,
		patterns: []labelPattern{
			{label: "Pay Period", re: periodRange, group: 2},
			dateLabel("Period Ending", `period\s+(?:ending|end(?:ed)?)`),
			dateLabel("End Date", `end\s+date`),
		},
	}
	payDateRule = fieldRule{
		name: "pay_date",
		kind: entity.KindDate,
		patterns: []labelPattern{
			dateLabel("Pay Date", `pay\s+date`),
			dateLabel("Check Date", `check\s+date`),
			dateLabel("Advice Date", `advice\s+date`),
			dateLabel("Payment Date", `payment\s+date`),
			dateLabel("Deposit Date", `deposit\s+date`),
		},
	}
	employeeRule = fieldRule{
		name: "employee_name",
		kind: entity.KindString,
		patterns: []labelPattern{
			nameLabel("Employee Name", `employee\s+name`),
			nameLabel("Employee", `\bemployee`),
			nameLabel("Pay to the order of", `pay\s+to\s+the\s+order\s+of`),
		},
	}
	employerRule = fieldRule{
		name: "employer_name",
		kind: entity.KindString,
		patterns: []labelPattern{
			nameLabel("Employer Name", `employer\s+name`),
			nameLabel("Employer", `\bemployer`),
			nameLabel("Company", `\bcompany(?:\s+name)?`),
		},
	}
)

// providerMarkers are the layout fingerprints of known payroll providers, in
// tie-break order.
var providerMarkers = []struct {
	name    string
	markers []*regexp.Regexp
}{
	{"ADP", []*regexp.Regexp{
		regexp.MustCompile(`\bADP\b`),
		regexp.MustCompile(`(?i)automatic\s+data\s+processing`),
		regexp.MustCompile(`(?i)earnings\s+statement`),
		regexp.MustCompile(`(?i)co\.\s+file\s+dept`),
	}},
	{"Paychex", []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bpaychex\b`),
		regexp.MustCompile(`(?i)paychex\s+flex`),
		regexp.MustCompile(`(?i)check\s+stub`),
	}},
	{"Workday", []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bworkday\b`),
		regexp.MustCompile(`(?i)pay\s*slip`),
		regexp.MustCompile(`(?i)payment\s+information`),
	}},
	{"Gusto", []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bgusto\b`),
		regexp.MustCompile(`(?i)zenpayroll`),
	}},
}

var frequencyKeywords = []struct {
	re   *regexp.Regexp
	freq constants.PayFrequency
}{
	{regexp.MustCompile(`(?i)\bbi-?weekly\b`), constants.PayBiweekly},
	{regexp.MustCompile(`(?i)\bsemi-?monthly\b`), constants.PaySemiMonthly},
	{regexp.MustCompile(`(?i)\bweekly\b`), constants.PayWeekly},
	{regexp.MustCompile(`(?i)\bmonthly\b`), constants.PayMonthly},
}

var (
	reYTDPrefix      = regexp.MustCompile(`(?i)\bytd\b|year[\s-]+to[\s-]+date`)
	reDollarAmount   = regexp.MustCompile(`\$[^\S\n]?(?:\d{1,3}(?:,\d{3})+|\d+)\.\d{2}`)
	reDeductionLine  = regexp.MustCompile(`^[^\S\n]*([A-Za-z0-9][A-Za-z0-9 .&/()'\-]*?)(?:[^\S\n]*[:|][^\S\n]*|[^\S\n]+)(\$?(?:\d{1,3}(?:,\d{3})+|\d+)\.\d{2})(?:[^\S\n]+(\$?(?:\d{1,3}(?:,\d{3})+|\d+)\.\d{2}))?[^\S\n]*$`)
	reDeductionTitle = regexp.MustCompile(`(?i)^[^\S\n]*(?:deductions|taxes|withholdings|statutory(?:\s+deductions)?|voluntary\s+deductions)\b[^\d]*$`)
	reNotDeduction   = regexp.MustCompile(`(?i)\b(?:gross|net|total|earnings|regular|overtime|salary|hours|rate|bonus|pay\s+date|period|check)\b`)
)

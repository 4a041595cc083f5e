// Package classifier maps free-text questions to query intents using an
// ordered table of keyword rules.
package classifier

import (
	"regexp"
	"strings"

	"placementqa/internal/domain"
)

// OperatorRule tags questions matching Pattern with Op.
type OperatorRule struct {
	Op      domain.Operator
	Pattern *regexp.Regexp
}

// ColumnRule targets Column when a question matches Pattern.
type ColumnRule struct {
	Column  string
	Pattern *regexp.Regexp
}

// Evaluation order is significant: the first matching rule in each table wins.
var (
	operatorRules = []OperatorRule{
		{domain.OpMax, words(`highest`, `maximum`, `max`, `most`, `top`, `best`, `largest`, `greatest`, `oldest`)},
		{domain.OpMin, words(`lowest`, `minimum`, `min`, `least`, `smallest`, `worst`, `youngest`)},
		{domain.OpMean, words(`average`, `mean`, `avg`)},
		{domain.OpCount, words(`how many`, `count`, `number of`, `total`)},
	}
	columnRules = []ColumnRule{
		{domain.ColumnSalary, words(`salary`, `salaries`, `pay`, `paid`, `package`, `income`, `earns?`, `earning`)},
		{domain.ColumnGPA, words(`gpa`, `cgpa`, `grades?`, `scores?`, `marks`)},
		{domain.ColumnAge, words(`ages?`, `old`, `older`, `oldest`, `young`, `younger`, `youngest`)},
		{domain.ColumnYearsOfExperience, words(`experience`, `experienced`, `work experience`)},
	}
	placementPattern = regexp.MustCompile(`placement|placed`)
)

func words(alternatives ...string) *regexp.Regexp {
	return regexp.MustCompile(`\b(?:` + strings.Join(alternatives, "|") + `)\b`)
}

// OperatorRules returns the operator table in evaluation order.
func OperatorRules() []OperatorRule { return append([]OperatorRule(nil), operatorRules...) }

// ColumnRules returns the column table in evaluation order.
func ColumnRules() []ColumnRule { return append([]ColumnRule(nil), columnRules...) }

// Classify returns the intent of question. Questions without an operator
// keyword, or with a non-count operator but no column keyword, are semantic.
func Classify(question string) domain.Intent {
	q := strings.ToLower(question)

	op, ok := matchOperator(q)
	if !ok {
		return domain.Semantic
	}
	column, hasColumn := matchColumn(q)

	if op == domain.OpCount {
		intent := domain.Intent{Kind: domain.IntentAggregation, Op: domain.OpCount, Column: column}
		if placementPattern.MatchString(q) {
			intent.Filter = domain.FilterPlaced
		}
		return intent
	}
	if !hasColumn {
		return domain.Semantic
	}
	return domain.Intent{Kind: domain.IntentAggregation, Op: op, Column: column}
}

func matchOperator(q string) (domain.Operator, bool) {
	for _, r := range operatorRules {
		if r.Pattern.MatchString(q) {
			return r.Op, true
		}
	}
	return 0, false
}

func matchColumn(q string) (string, bool) {
	for _, r := range columnRules {
		if r.Pattern.MatchString(q) {
			return r.Column, true
		}
	}
	return "", false
}

package documents

import (
	"context"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/meinedokbox/dokbox/models"
)

// ClassifyInput is what a classifier may look at.
type ClassifyInput struct {
	Filename    string
	ContentType string
	Subject     string
	Text        string
}

// Classifier assigns a category to a document. Implementations must always
// return a valid category; models.CategoryOther is the fallback.
type Classifier interface {
	Classify(ctx context.Context, in ClassifyInput) models.Category
}

type keywordRule struct {
	category models.Category
	keywords []string
}

// Checked in order; the first rule with a hit wins. More specific
// categories come before the ones whose keywords they contain.
var defaultRules = []keywordRule{
	{models.CategoryTax, []string{"steuerbescheid", "finanzamt", "steuererklärung", "steuer", "elster", "tax"}},
	{models.CategoryInsurance, []string{"versicherung", "versicherungsschein", "police", "insurance"}},
	{models.CategorySalary, []string{"gehaltsabrechnung", "lohnabrechnung", "entgeltabrechnung", "gehalt", "payslip", "salary"}},
	{models.CategoryMedical, []string{"arztbrief", "befund", "krankenkasse", "praxis", "klinik", "medical"}},
	{models.CategoryContract, []string{"vertrag", "kündigung", "mietvertrag", "contract", "agreement"}},
	{models.CategoryInvoice, []string{"rechnung", "invoice", "zahlungserinnerung", "mahnung"}},
	{models.CategoryBank, []string{"kontoauszug", "sparkasse", "volksbank", "depot", "bank", "statement"}},
	{models.CategoryReceipt, []string{"quittung", "kassenbon", "kassenzettel", "beleg", "receipt"}},
	{models.CategoryLetter, []string{"brief", "schreiben", "letter", "mitteilung"}},
}

// maxClassifyText bounds how much body text is scanned.
const maxClassifyText = 4000

// KeywordClassifier matches German and English keywords in the filename
// and subject first, then in the document text.
type KeywordClassifier struct {
	rules []keywordRule
}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{rules: defaultRules}
}

func (k *KeywordClassifier) Classify(_ context.Context, in ClassifyInput) models.Category {
	if c, ok := k.match(in.Filename + " " + in.Subject); ok {
		return c
	}
	text := in.Text
	if len(text) > maxClassifyText {
		text = text[:maxClassifyText]
	}
	if c, ok := k.match(text); ok {
		return c
	}
	return models.CategoryOther
}

func (k *KeywordClassifier) match(s string) (models.Category, bool) {
	// Filenames from macOS arrive decomposed; keywords are NFC.
	s = strings.ToLower(norm.NFC.String(s))
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	for _, rule := range k.rules {
		for _, kw := range rule.keywords {
			if strings.Contains(s, kw) {
				return rule.category, true
			}
		}
	}
	return "", false
}

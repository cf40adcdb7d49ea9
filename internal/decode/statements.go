package decode

import "time"

// Statement is an e-statement available for download.
//
// Layout (';'): [0]=code starting with yyMM [1]=account number [2]=file name [3]=download URL.
// No captured sample confirms offsets 2 and 3.
type Statement struct {
	Code          string `json:"code"`
	Period        string `json:"period"`
	AccountNumber string `json:"accountNumber"`
	FileName      string `json:"fileName"`
	URL           string `json:"url"`
}

func Statements(raw string) []Statement {
	return guard("statements", raw, func() []Statement {
		var out []Statement
		for _, p := range records(raw, semiSep) {
			code := field(p, 0)
			out = append(out, Statement{
				Code:          code,
				Period:        PeriodLabel(code),
				AccountNumber: field(p, 1),
				FileName:      text(p, 2),
				URL:           text(p, 3),
			})
		}
		return out
	})
}

// PeriodLabel turns a "yyMM..." prefix into "Jan 2006" form, "" when the prefix is not a date.
func PeriodLabel(code string) string {
	if len(code) < 4 {
		return ""
	}
	t, err := time.Parse("0601", code[:4])
	if err != nil {
		return ""
	}
	return t.Format("Jan 2006")
}

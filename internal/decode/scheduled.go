package decode

// ScheduledPayment is a standing order or future-dated bill payment.
//
// Layout (';'): [0]=code [4]=currency [5]=amount [8]=date [9]=frequency code [11]=until
// [13]=status [17]=pay from [22]=reference number [23]=pay to [24]=biller name.
// Offsets 17, 22, 23 and 24 are only confirmed by a single captured sample.
type ScheduledPayment struct {
	Code          string  `json:"code"`
	Currency      string  `json:"currency"`
	Amount        float64 `json:"amount"`
	Date          string  `json:"date"`
	FrequencyCode string  `json:"frequencyCode"`
	Frequency     string  `json:"frequency"`
	Until         string  `json:"until"`
	Status        string  `json:"status"`
	PayFrom       string  `json:"payFrom"`
	ReferenceNo   string  `json:"referenceNo"`
	PayTo         string  `json:"payTo"`
	BillerName    string  `json:"billerName"`
}

var frequencies = map[string]string{
	"D": "Daily",
	"W": "Weekly",
	"M": "Monthly",
	"Q": "Quarterly",
	"Y": "Yearly",
}

// FrequencyLabel maps a backend frequency code to its display label. Unknown codes, including
// "O", are one-off payments.
func FrequencyLabel(code string) string {
	if l, ok := frequencies[code]; ok {
		return l
	}
	return "Once"
}

func ScheduledPayments(raw string) []ScheduledPayment {
	return guard("scheduled_payments", raw, func() []ScheduledPayment {
		var out []ScheduledPayment
		for _, p := range records(raw, semiSep) {
			freq := field(p, 9)
			out = append(out, ScheduledPayment{
				Code:          field(p, 0),
				Currency:      field(p, 4),
				Amount:        number(field(p, 5)),
				Date:          field(p, 8),
				FrequencyCode: freq,
				Frequency:     FrequencyLabel(freq),
				Until:         field(p, 11),
				Status:        field(p, 13),
				PayFrom:       field(p, 17),
				ReferenceNo:   field(p, 22),
				PayTo:         field(p, 23),
				BillerName:    text(p, 24),
			})
		}
		return out
	})
}

package decode

import "github.com/tidwall/gjson"

// Receipt confirms a completed payment or transfer.
//
// Layout (';'): [0]=reference number [1]=date [2]=amount [3]=currency [4]=pay from [5]=pay to
// [6]=description. Unverified against live data.
type Receipt struct {
	ReferenceNo string  `json:"referenceNo"`
	Date        string  `json:"date"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	PayFrom     string  `json:"payFrom"`
	PayTo       string  `json:"payTo"`
	Description string  `json:"description"`
}

// ReceiptResult carries the envelope status/msg pair alongside the decoded receipts.
type ReceiptResult struct {
	Success  bool      `json:"success"`
	Message  string    `json:"message"`
	Receipts []Receipt `json:"receipts"`
}

func Receipts(raw string) []Receipt {
	return guard("receipts", raw, func() []Receipt {
		var out []Receipt
		for _, p := range records(raw, semiSep) {
			out = append(out, Receipt{
				ReferenceNo: field(p, 0),
				Date:        field(p, 1),
				Amount:      number(field(p, 2)),
				Currency:    field(p, 3),
				PayFrom:     text(p, 4),
				PayTo:       text(p, 5),
				Description: text(p, 6),
			})
		}
		return out
	})
}

// ReceiptReply unwraps status/msg first. A failed envelope yields no receipts even if the
// backend echoed a payload.
func ReceiptReply(env gjson.Result) ReceiptResult {
	res := ReceiptResult{
		Success:  Succeeded(env),
		Message:  Message(env),
		Receipts: []Receipt{},
	}
	if res.Success {
		res.Receipts = Receipts(Field(env, FieldReceipt))
	}
	return res
}

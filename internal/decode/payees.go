package decode

// Payee is a saved transfer beneficiary.
//
// Layout (';'): [0]=name [1]=account type [2]=routing number [5]=account number [6]=bank name
// [7]=nickname [9]=currency [10]=id.
type Payee struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	AccountType   string `json:"accountType"`
	RoutingNo     string `json:"routingNo"`
	AccountNumber string `json:"accountNumber"`
	BankName      string `json:"bankName"`
	NickName      string `json:"nickName"`
	Currency      string `json:"currency"`
}

func Payees(raw string) []Payee {
	return guard("payees", raw, func() []Payee {
		var out []Payee
		for _, p := range records(raw, semiSep) {
			out = append(out, Payee{
				ID:            field(p, 10),
				Name:          text(p, 0),
				AccountType:   field(p, 1),
				RoutingNo:     field(p, 2),
				AccountNumber: field(p, 5),
				BankName:      text(p, 6),
				NickName:      text(p, 7),
				Currency:      field(p, 9),
			})
		}
		return out
	})
}

package decode

// Transaction is one row of the transaction history, most recent first as sent by the backend.
//
// Layout ('#'): [0]=id [1]=date [2]=amount [4]=from number [5]=from name [6]=to number
// [7]=to name [8]=status [9]=description [11]=currency.
type Transaction struct {
	ID          string  `json:"id"`
	Date        string  `json:"date"`
	Amount      float64 `json:"amount"`
	FromAccount string  `json:"fromAccount"`
	ToAccount   string  `json:"toAccount"`
	Status      string  `json:"status"`
	Desc        string  `json:"desc"`
	Currency    string  `json:"currency"`
}

func Transactions(raw string) []Transaction {
	return guard("transactions", raw, func() []Transaction {
		var out []Transaction
		for _, p := range records(raw, hashSep) {
			out = append(out, Transaction{
				ID:          field(p, 0),
				Date:        field(p, 1),
				Amount:      number(field(p, 2)),
				FromAccount: account(field(p, 4), text(p, 5)),
				ToAccount:   account(field(p, 6), text(p, 7)),
				Status:      field(p, 8),
				Desc:        text(p, 9),
				Currency:    field(p, 11),
			})
		}
		return out
	})
}

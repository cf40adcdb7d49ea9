package banking

import (
	"context"

	"github.com/susu3304/netbank/internal/decode"
	"github.com/susu3304/netbank/internal/geo"
)

// The methods below fetch one endpoint and hand its delimited payload to the matching decoder.
// A transport error is returned as-is; a failed envelope status decodes to an empty list.

func (c *Client) TransactionHistory(ctx context.Context, accessToken string, fields map[string]interface{}) ([]decode.Transaction, error) {
	env, err := c.Call(ctx, accessToken, EndpointTransactions, fields)
	if err != nil {
		return nil, err
	}
	return decode.Transactions(decode.Field(env, decode.FieldTransactions)), nil
}

func (c *Client) ScheduledPayments(ctx context.Context, accessToken string, fields map[string]interface{}) ([]decode.ScheduledPayment, error) {
	env, err := c.Call(ctx, accessToken, EndpointScheduledPayments, fields)
	if err != nil {
		return nil, err
	}
	return decode.ScheduledPayments(decode.Field(env, decode.FieldScheduledPayments)), nil
}

func (c *Client) Payees(ctx context.Context, accessToken string, fields map[string]interface{}) ([]decode.Payee, error) {
	env, err := c.Call(ctx, accessToken, EndpointPayees, fields)
	if err != nil {
		return nil, err
	}
	return decode.Payees(decode.Field(env, decode.FieldPayees)), nil
}

// Locations searches around origin when it is set.
func (c *Client) Locations(ctx context.Context, accessToken string, origin *geo.Point, fields map[string]interface{}) (decode.LocateResult, error) {
	if origin != nil {
		if fields == nil {
			fields = map[string]interface{}{}
		}
		fields["lat"] = origin.Lat
		fields["lng"] = origin.Lng
	}
	env, err := c.Call(ctx, accessToken, EndpointLocations, fields)
	if err != nil {
		return decode.LocateResult{Locations: []decode.Location{}}, err
	}
	return decode.Locate(env, origin), nil
}

func (c *Client) Notifications(ctx context.Context, accessToken string) (decode.NotificationSet, error) {
	env, err := c.Call(ctx, accessToken, EndpointNotifications, nil)
	if err != nil {
		return decode.NotificationSet{}, err
	}
	return decode.Notifications(env), nil
}

func (c *Client) Statements(ctx context.Context, accessToken string, fields map[string]interface{}) ([]decode.Statement, error) {
	env, err := c.Call(ctx, accessToken, EndpointStatements, fields)
	if err != nil {
		return nil, err
	}
	return decode.Statements(decode.Field(env, decode.FieldStatements)), nil
}

func (c *Client) Receipt(ctx context.Context, accessToken, referenceNo string) (decode.ReceiptResult, error) {
	env, err := c.Call(ctx, accessToken, EndpointReceipt, map[string]interface{}{"referenceNo": referenceNo})
	if err != nil {
		return decode.ReceiptResult{Receipts: []decode.Receipt{}}, err
	}
	return decode.ReceiptReply(env), nil
}

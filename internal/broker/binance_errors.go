package broker

import (
	stderrors "errors"

	"github.com/adshao/go-binance/v2/common"
	"github.com/rxtech-lab/indicator-bot/pkg/errors"
)

// Binance API error codes that mean the exchange understood and refused the request.
const (
	binanceCodeFilterFailure   = -1013
	binanceCodeNewOrderReject  = -2010
	binanceCodeCancelRejected  = -2011
	binanceCodeNoSuchOrder     = -2013
	binanceCodeRequestRangeLow = -1199
	binanceCodeRequestRangeHi  = -1100
)

// classify maps a Binance client error onto the broker error taxonomy.
func classify(err error, message string) error {
	var apiErr *common.APIError
	if !stderrors.As(err, &apiErr) {
		return errors.Wrap(errors.ErrCodeBrokerRequest, message, err)
	}

	switch {
	case apiErr.Code == binanceCodeCancelRejected || apiErr.Code == binanceCodeNoSuchOrder:
		return errors.Wrap(errors.ErrCodeBrokerRejection, message, stderrors.Join(ErrUnknownOrder, err))
	case apiErr.Code == binanceCodeNewOrderReject,
		apiErr.Code == binanceCodeFilterFailure,
		apiErr.Code >= binanceCodeRequestRangeLow && apiErr.Code <= binanceCodeRequestRangeHi:
		return errors.Wrap(errors.ErrCodeBrokerRejection, message, err)
	default:
		return errors.Wrap(errors.ErrCodeBrokerRequest, message, err)
	}
}

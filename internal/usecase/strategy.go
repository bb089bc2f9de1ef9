package usecase

import (
	"fmt"
	"math"
	"strconv"

	"PriceCast/internal/domain/models"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// CostModel is the toy execution cost applied on both legs of a trade.
type CostModel struct {
	TransactionCost float64
	Slippage        float64
}

// Simulation is the outcome of replaying paired signals against cash.
type Simulation struct {
	Trades     []models.Trade
	NetProfit  float64
	TotalFees  float64
	FinalValue float64
}

// DetectSignals walks consecutive predictions. A rise opens a position when
// flat; a fall closes it when open. Both use the previous prediction as price.
func DetectSignals(pred []float64) (buys, sells []models.TradeSignal) {
	buys, sells = []models.TradeSignal{}, []models.TradeSignal{}
	for i := 1; i < len(pred); i++ {
		d := pred[i] - pred[i-1]
		switch {
		case d > 0 && len(buys) == len(sells):
			buys = append(buys, models.TradeSignal{Day: i, Price: pred[i-1], Action: models.ActionBuy})
		case d < 0 && len(buys) > len(sells):
			sells = append(sells, models.TradeSignal{Day: i, Price: pred[i-1], Action: models.ActionSell})
		}
	}
	return buys, sells
}

// Simulate pairs buys[i] with sells[i], compounding the whole balance through
// every trade. An unmatched trailing buy is ignored.
func Simulate(investment float64, buys, sells []models.TradeSignal, costs CostModel) Simulation {
	sim := Simulation{Trades: []models.Trade{}, FinalValue: investment}
	cash := investment
	for i, buy := range buys {
		if i >= len(sells) {
			break
		}
		sell := sells[i]

		buyFee := cash * costs.TransactionCost
		available := cash - buyFee
		buyPx := buy.Price * (1 + costs.Slippage)
		shares := available / buyPx

		sellPx := sell.Price * (1 - costs.Slippage)
		gross := shares * sellPx
		sellFee := gross * costs.TransactionCost
		net := gross - sellFee

		profit := net - cash
		fees := buyFee + sellFee
		sim.NetProfit += profit
		sim.TotalFees += fees
		sim.Trades = append(sim.Trades, models.Trade{
			BuyDay:           buy.Day,
			BuyPrice:         buy.Price,
			BuyPriceActual:   buyPx,
			SellDay:          sell.Day,
			SellPrice:        sell.Price,
			SellPriceActual:  sellPx,
			Shares:           shares,
			GrossProfit:      gross - available,
			Fees:             fees,
			NetProfit:        profit,
			ReturnPercentage: profit / cash * 100,
		})
		cash = net
	}
	sim.FinalValue = cash
	return sim
}

// Evaluate returns MSE, RMSE and R². A constant actual series scores R² 1 on a
// perfect fit and 0 otherwise.
func Evaluate(actual, pred []float64) models.ModelPerformance {
	n := min(len(actual), len(pred))
	if n == 0 {
		return models.ModelPerformance{}
	}
	actual, pred = actual[:n], pred[:n]

	d := floats.Distance(actual, pred, 2)
	mse := d * d / float64(n)

	r2 := 0.0
	switch {
	case floats.Min(actual) != floats.Max(actual):
		r2 = stat.RSquaredFrom(pred, actual, nil)
	case d == 0:
		r2 = 1
	}
	return models.ModelPerformance{MSE: mse, RMSE: math.Sqrt(mse), R2: r2}
}

// Recommend compares the last prediction to the last actual close.
func Recommend(lastPred, lastClose float64) models.Recommendation {
	action := models.ActionSell
	if lastPred > lastClose {
		action = models.ActionBuy
	}
	confidence := 0.0
	if lastClose != 0 {
		confidence = math.Abs((lastPred - lastClose) / lastClose * 100)
	}
	return models.Recommendation{
		CurrentAction:   action,
		Confidence:      fmt.Sprintf("%.2f%%", confidence),
		NextTargetPrice: lastPred,
	}
}

func formatRate(rate float64) string {
	return strconv.FormatFloat(rate*100, 'f', -1, 64) + "%"
}

// movingAverage returns a series aligned with x whose first period-1 entries are NaN.
func movingAverage(x []float64, period int) []float64 {
	out := make([]float64, len(x))
	for i := range out {
		out[i] = math.NaN()
	}
	if period <= 0 || len(x) < period {
		return out
	}
	sma := trend.NewSmaWithPeriod[float64](period)
	values := helper.ChanToSlice(sma.Compute(helper.SliceToChan(x)))
	copy(out[len(x)-len(values):], values)
	return out
}

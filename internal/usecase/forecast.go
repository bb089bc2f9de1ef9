package usecase

import (
	"context"
	"fmt"
	"time"

	"PriceCast/internal/domain/models"
	drepo "PriceCast/internal/domain/repository"
	"PriceCast/internal/services/dataprep"
	"PriceCast/pkg/logger"
	"PriceCast/pkg/util"
)

const disclaimer = "This is not financial advice. Past performance does not guarantee future results."

type InferenceConfig struct {
	LookbackYears     int
	DefaultInvestment float64
	Costs             CostModel
}

// ForecastService runs inference against a persisted artifact and backtests
// the toy strategy over the test partition.
type ForecastService struct {
	source  drepo.BarSource
	models  drepo.ModelStore
	factory drepo.ForecasterFactory
	plots   drepo.PlotRenderer
	metrics drepo.Metrics
	lgr     *logger.Logger
	cfg     InferenceConfig
	now     func() time.Time
}

func NewForecastService(
	source drepo.BarSource,
	store drepo.ModelStore,
	factory drepo.ForecasterFactory,
	plots drepo.PlotRenderer,
	metrics drepo.Metrics,
	lgr *logger.Logger,
	cfg InferenceConfig,
) *ForecastService {
	return &ForecastService{
		source:  source,
		models:  store,
		factory: factory,
		plots:   plots,
		metrics: metrics,
		lgr:     lgr,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Forecast uses the ticker artifact if present, else the shared default.
// investment <= 0 selects the configured default.
func (s *ForecastService) Forecast(ctx context.Context, raw string, investment float64) (*models.ForecastResult, error) {
	start := s.now()
	ticker, err := NormalizeTicker(raw)
	if err != nil {
		return nil, err
	}
	if investment <= 0 {
		investment = s.cfg.DefaultInvestment
	}

	bars, err := s.source.FetchDaily(ctx, ticker, util.YearsBefore(start, s.cfg.LookbackYears), start)
	if err != nil {
		return nil, err
	}
	split, err := dataprep.Prepare(bars, dataprep.DefaultSplitRatio)
	if err != nil {
		return nil, err
	}

	ref, err := s.models.Resolve(ticker)
	if err != nil {
		return nil, err
	}
	model, err := s.load(ref)
	if err != nil {
		return nil, err
	}

	ds, err := dataprep.InferenceSet(split)
	if err != nil {
		return nil, err
	}
	scaledPred, err := model.Predict(ds.Windows)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	pred, err := ds.Scaler.InverseTransform(scaledPred)
	if err != nil {
		return nil, err
	}
	actual, err := ds.Scaler.InverseTransform(ds.Targets)
	if err != nil {
		return nil, err
	}

	closes := models.Closes(bars)
	lastClose := closes[len(closes)-1]
	buys, sells := DetectSignals(pred)
	sim := Simulate(investment, buys, sells, s.cfg.Costs)

	res := &models.ForecastResult{
		Status:           "success",
		ModelInfo:        modelInfo(ref),
		Ticker:           ticker,
		ModelPerformance: Evaluate(actual, pred),
		TradingStrategy: models.TradingStrategy{
			InvestmentAmount:        investment,
			CurrentPrice:            lastClose,
			StrategyExplanation:     explain(split.TestBars, len(actual), len(sim.Trades)),
			BuySignals:              buys,
			SellSignals:             sells,
			Trades:                  sim.Trades,
			TotalTrades:             len(sim.Trades),
			GrossTradingProfit:      sim.NetProfit + sim.TotalFees,
			TotalFees:               sim.TotalFees,
			NetTradingProfit:        sim.NetProfit,
			FinalPortfolioValue:     sim.FinalValue,
			TradingReturnPercentage: (sim.FinalValue - investment) / investment * 100,
			TradingCosts: models.TradingCosts{
				TransactionCostRate: formatRate(s.cfg.Costs.TransactionCost),
				SlippageRate:        formatRate(s.cfg.Costs.Slippage),
				TotalFeesPaid:       sim.TotalFees,
			},
		},
		Recommendations: Recommend(pred[len(pred)-1], lastClose),
		Disclaimer:      disclaimer,
	}
	if err := s.renderPlots(ctx, res, closes, actual, pred); err != nil {
		return nil, err
	}

	label := "ticker"
	if ref.IsDefault {
		label = "default"
	}
	elapsed := s.now().Sub(start)
	s.metrics.InferenceDone(label, elapsed)
	s.lgr.Info("forecast served",
		logger.String("ticker", ticker),
		logger.String("model", label),
		logger.Int("test_days", len(actual)),
		logger.Int("trades", len(sim.Trades)),
		logger.Duration("elapsed_ms", elapsed))
	return res, nil
}

func (s *ForecastService) load(ref drepo.ArtifactRef) (drepo.Forecaster, error) {
	rc, err := s.models.Open(ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	m, err := s.factory.Load(rc)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", ref.Path, err)
	}
	return m, nil
}

func (s *ForecastService) renderPlots(ctx context.Context, res *models.ForecastResult, closes, actual, pred []float64) error {
	t := res.Ticker
	closing := drepo.Series{Label: "Closing Price", Color: "#1f77b4", Values: closes}
	ma100 := drepo.Series{Label: "100 DMA", Color: "red", Values: movingAverage(closes, 100)}
	ma200 := drepo.Series{Label: "200 DMA", Color: "green", Values: movingAverage(closes, 200)}

	plots := []struct {
		dst    *string
		name   string
		title  string
		series []drepo.Series
	}{
		{&res.PlotImg, t + "_plot", "Closing price of " + t, []drepo.Series{closing}},
		{&res.Plot100DMA, t + "_100_dma", "100 Days Moving Average of " + t, []drepo.Series{closing, ma100}},
		{&res.Plot200DMA, t + "_200_dma", "200 Days Moving Average of " + t, []drepo.Series{closing, ma100, ma200}},
		{&res.PlotPrediction, t + "_final_prediction", "Final Prediction for " + t, []drepo.Series{
			{Label: "Original Price", Color: "blue", Values: actual},
			{Label: "Predicted Price", Color: "red", Values: pred},
		}},
	}
	for _, p := range plots {
		url, err := s.plots.Render(ctx, p.name, p.title, p.series)
		if err != nil {
			return fmt.Errorf("render %s: %w", p.name, err)
		}
		*p.dst = url
	}
	return nil
}

// ListModels returns per-ticker artifacts, newest first.
func (s *ForecastService) ListModels(_ context.Context) (*models.TrainedModelsResponse, error) {
	files, err := s.models.List()
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]models.TrainedModel, 0, len(files))
	for _, f := range files {
		out = append(out, models.TrainedModel{
			Ticker:    f.Ticker,
			ModelPath: f.Path,
			TrainedAt: util.TimeAgo(now, f.ModTime),
			FileSize:  f.Size,
		})
	}
	return &models.TrainedModelsResponse{Status: "success", Models: out, Count: len(out)}, nil
}

func modelInfo(ref drepo.ArtifactRef) string {
	if ref.IsDefault {
		return fmt.Sprintf("Trained model doesn't exist for %s, using default trained model", ref.Ticker)
	}
	return fmt.Sprintf("Trained model exists for %s", ref.Ticker)
}

// explain describes the backtest window. The period runs from the first to
// the last bar of the test partition.
func explain(test []models.PriceBar, days, trades int) models.StrategyExplanation {
	e := models.StrategyExplanation{
		Method:      "ML Forecast-Based Trading",
		Description: "Buy when model predicts price will go UP tomorrow, sell when it predicts price will go DOWN tomorrow",
		BasedOn:     "LSTM neural network predictions trained on historical price patterns",
		Timeframe:   fmt.Sprintf("%d trading days", days),
	}
	if len(test) > 0 {
		e.Period = fmt.Sprintf("From %s to %s",
			test[0].Date.Format(time.DateOnly), test[len(test)-1].Date.Format(time.DateOnly))
	}
	perDay := 0.0
	if days > 0 {
		perDay = float64(trades) / float64(days)
	}
	e.TradesPerDay = fmt.Sprintf("%.1f average", perDay)
	return e
}

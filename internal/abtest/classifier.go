package abtest

import (
	"context"
	"errors"
	"time"

	"photoai/internal/ai"
	"photoai/internal/logger"

	"go.uber.org/zap"
)

// ledgerModel 写入同步台账时使用的模型名
const ledgerModel = "room-classifier"

// ErrNoSeed 请求缺少分桶种子
var ErrNoSeed = errors.New("room classifier seed is required")

// ClassifyResult 单个变体的分类结果
type ClassifyResult struct {
	RoomType   string  `json:"room_type"`
	Confidence float64 `json:"confidence"`
}

// ClassifyFunc 变体实现
type ClassifyFunc func(ctx context.Context, photo []byte) (ClassifyResult, error)

// ClassifyRequest 分类请求；Seed 为空时依次使用 PhotoID、UserID
type ClassifyRequest struct {
	Seed    string
	Photo   []byte
	UserID  string
	BatchID string
	PhotoID string
}

// ClassifyResponse 分类结果及其来源
type ClassifyResponse struct {
	ClassifyResult
	Variant  Variant `json:"variant"`
	Fallback bool    `json:"fallback"`
}

// Classifier 房间分类门面：按种子选变体，B 失败回退 A，
// 每次请求写一条实验记录和一条同步台账记录
type Classifier struct {
	router   *Router
	tracker  *Tracker
	ledger   *ai.Ledger
	variantA ClassifyFunc
	variantB ClassifyFunc
}

// NewClassifier 创建分类门面；ledger 可为 nil
func NewClassifier(router *Router, tracker *Tracker, ledger *ai.Ledger, variantA, variantB ClassifyFunc) *Classifier {
	return &Classifier{
		router:   router,
		tracker:  tracker,
		ledger:   ledger,
		variantA: variantA,
		variantB: variantB,
	}
}

// Classify 执行一次分类
func (c *Classifier) Classify(ctx context.Context, req ClassifyRequest) (*ClassifyResponse, error) {
	seed := req.Seed
	if seed == "" {
		seed = req.PhotoID
	}
	if seed == "" {
		seed = req.UserID
	}
	if seed == "" {
		return nil, ErrNoSeed
	}

	variant := c.router.ChooseVariant(seed)
	start := time.Now()

	if variant == VariantA {
		res, err := c.variantA(ctx, req.Photo)
		c.record(req, VariantA, false, start, res, err)
		if err != nil {
			return nil, err
		}
		return &ClassifyResponse{ClassifyResult: res, Variant: VariantA}, nil
	}

	res, err := c.variantB(ctx, req.Photo)
	if err == nil {
		c.record(req, VariantB, false, start, res, nil)
		return &ClassifyResponse{ClassifyResult: res, Variant: VariantB}, nil
	}

	logger.WithContext(ctx).Warn("房间分类 B 变体失败，回退到 A",
		zap.String("seed", seed),
		zap.Error(err),
	)
	res, err = c.variantA(ctx, req.Photo)
	c.record(req, VariantB, true, start, res, err)
	if err != nil {
		return nil, err
	}
	return &ClassifyResponse{ClassifyResult: res, Variant: VariantB, Fallback: true}, nil
}

func (c *Classifier) record(req ClassifyRequest, variant Variant, fallback bool, start time.Time, res ClassifyResult, err error) {
	latency := time.Since(start).Milliseconds()

	m := RoomClassifierMetric{
		Variant:    variant,
		Success:    err == nil,
		LatencyMs:  latency,
		RoomType:   res.RoomType,
		Confidence: res.Confidence,
		UserID:     req.UserID,
		BatchID:    req.BatchID,
		PhotoID:    req.PhotoID,
		Fallback:   fallback,
		Timestamp:  start,
	}
	if err != nil {
		code := string(ai.ClassifyError(err))
		m.ErrorCode = &code
	}
	c.tracker.Record(m)

	if c.ledger == nil {
		return
	}
	op := "roomClassifier." + string(variant)
	if fallback {
		op = "roomClassifier.fallback"
	}
	entry := ai.AIMetric{
		Timestamp: start.UTC().Format(time.RFC3339Nano),
		Operation: op,
		LatencyMs: latency,
		Success:   err == nil,
		Model:     ledgerModel,
		InputSize: len(req.Photo),
	}
	if err != nil {
		msg := err.Error()
		entry.ErrorCode = &msg
	}
	c.ledger.Record(entry)
}

package engine

import (
	"context"
	"errors"

	"photoai/internal/abtest"
)

// errNoRoomType 整图分析没有给出房间类型
var errNoRoomType = errors.New("provider returned no room type")

// RoomClassifierVariants 房间分类实验的两个变体
// A：专用房间识别提示词；B：整图物品分析并取其房间类型与置信度
func (e *Engine) RoomClassifierVariants() (variantA, variantB abtest.ClassifyFunc) {
	variantA = func(ctx context.Context, photo []byte) (abtest.ClassifyResult, error) {
		roomType, err := e.DetectRoom(ctx, photo, Options{})
		if err != nil {
			return abtest.ClassifyResult{}, err
		}
		return abtest.ClassifyResult{RoomType: roomType}, nil
	}

	variantB = func(ctx context.Context, photo []byte) (abtest.ClassifyResult, error) {
		analysis, err := e.AnalyzePhoto(ctx, photo, Options{})
		if err != nil {
			return abtest.ClassifyResult{}, err
		}
		if analysis.RoomType == nil || *analysis.RoomType == "" {
			return abtest.ClassifyResult{}, errNoRoomType
		}
		res := abtest.ClassifyResult{RoomType: *analysis.RoomType}
		if analysis.Confidence != nil {
			res.Confidence = *analysis.Confidence
		}
		return res, nil
	}
	return variantA, variantB
}

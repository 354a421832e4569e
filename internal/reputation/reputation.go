// Package reputation вычисляет сводную репутацию аккаунта по истории
// заказов и отзывов. Репутация — производная величина: она считается
// по требованию из текущего снимка каталога и нигде не хранится.
package reputation

import (
	"github.com/mmeshcher/provenance-system/internal/model"
)

const (
	baseScore     = 50
	deliveryBonus = 10
	disputeFine   = 15
	praiseBonus   = 2

	minScore = 0
	maxScore = 100

	// Оценка 2 и ниже считается спорной поставкой
	disputeRating = 2
	// Оценка 4 и выше поднимает репутацию
	praiseRating = 4
)

// Compute собирает репутацию аккаунта: базовый балл, бонус за каждую
// доставку, штраф за каждый спор и надбавка за высокие оценки.
// Итог ограничен диапазоном [0, 100].
func Compute(address string, orders []model.Order, feedbacks []model.Feedback) model.Reputation {
	rep := model.Reputation{Address: address}

	for _, o := range orders {
		if o.Buyer == address && o.IsDelivered {
			rep.SuccessfulDeliveries++
		}
	}

	var praises int64
	for _, f := range feedbacks {
		if f.Buyer != address {
			continue
		}
		if f.Rating <= disputeRating {
			rep.Disputes++
		}
		if f.Rating >= praiseRating {
			praises++
		}
	}

	score := baseScore +
		deliveryBonus*rep.SuccessfulDeliveries -
		disputeFine*rep.Disputes +
		praiseBonus*praises

	if score < minScore {
		score = minScore
	}
	if score > maxScore {
		score = maxScore
	}
	rep.Score = score

	return rep
}

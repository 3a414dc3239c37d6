package test

import "github.com/polkiloo/orderpay/internal/domain/model"

// NextOrderNumber is the reference allocation rule the storage backends must agree with.
// exists is false when the merchant has no counter yet.
func NextOrderNumber(current int, exists bool) int {
	if !exists {
		return model.OrderNumberSeed
	}
	next := current + 1
	if next >= model.OrderNumberCeiling || next < model.OrderNumberSeed {
		return model.OrderNumberSeed
	}
	return next
}

package helpers

import (
	"fmt"
	"sync"

	model "pigeon-auction/internal/models"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	registerOnce sync.Once
	registerErr  error
)

// RegisterValidators adds the auction_sort and auction_status tags to gin's validator.
// Safe to call more than once.
func RegisterValidators() error {
	registerOnce.Do(func() { registerErr = registerValidators() })
	return registerErr
}

func registerValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("helpers: unexpected validator engine %T", binding.Validator.Engine())
	}
	if err := v.RegisterValidation("auction_sort", validateAuctionSort); err != nil {
		return fmt.Errorf("helpers: register auction_sort: %w", err)
	}
	if err := v.RegisterValidation("auction_status", validateAuctionStatus); err != nil {
		return fmt.Errorf("helpers: register auction_status: %w", err)
	}
	return nil
}

func validateAuctionSort(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case model.SortNewest, model.SortEndingSoon, model.SortPriceAsc, model.SortPriceDesc:
		return true
	}
	return false
}

func validateAuctionStatus(fl validator.FieldLevel) bool {
	return model.AuctionStatus(fl.Field().String()).Valid()
}

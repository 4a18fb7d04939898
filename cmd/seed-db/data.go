package main

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/hearth-checkout/internal/domain/coupon"
	"github.com/xenking/hearth-checkout/internal/repository"
)

var now = time.Now

// parseProducts reads [{"name","price","category","image_url"}].
func parseProducts(data []byte) ([]repository.NewProduct, error) {
	var out []repository.NewProduct
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var p repository.NewProduct
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "name":
				v, err := d.Str()
				p.Name = v
				return err
			case "category":
				v, err := d.Str()
				p.Category = v
				return err
			case "image_url":
				v, err := d.Str()
				p.ImageURL = v
				return err
			case "price":
				v, err := d.Str()
				if err != nil {
					return err
				}
				p.Price, err = decimal.NewFromString(v)
				return err
			default:
				return d.Skip()
			}
		}); err != nil {
			return err
		}
		if p.Name == "" {
			return errors.New("product without name")
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

// demoCoupons covers each eligibility rule once.
func demoCoupons(at time.Time) []coupon.Coupon {
	yesterday := at.Add(-24 * time.Hour)
	once := 1
	return []coupon.Coupon{
		{
			Code:          "SAVE10",
			DiscountType:  coupon.DiscountPercentage,
			DiscountValue: decimal.NewFromInt(10),
			IsActive:      true,
		},
		{
			Code:           "FLAT20",
			DiscountType:   coupon.DiscountFixed,
			DiscountValue:  decimal.NewFromInt(20),
			MinOrderAmount: decimal.NewFromInt(50),
			IsActive:       true,
		},
		{
			Code:          "EXPIRED1",
			DiscountType:  coupon.DiscountPercentage,
			DiscountValue: decimal.NewFromInt(15),
			IsActive:      true,
			ExpiresAt:     &yesterday,
		},
		{
			Code:          "ONCE50",
			DiscountType:  coupon.DiscountFixed,
			DiscountValue: decimal.NewFromInt(50),
			MaxUses:       &once,
			IsActive:      true,
		},
	}
}

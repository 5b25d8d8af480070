package main

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/gallery-checkout/internal/domain/catalog"
)

// parseArtwork decodes one NDJSON artwork record:
//
//	{"id":1,"seller_id":2,"title":"...","price":"120.50","image_url":"...","status":"APPROVED"}
//
// price may be a JSON number or string. status defaults to PENDING.
func parseArtwork(line []byte) (catalog.Item, error) {
	var it catalog.Item
	err := jx.DecodeBytes(line).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			it.ID, err = d.Int64()
		case "seller_id":
			it.SellerID, err = d.Int64()
		case "title":
			it.Title, err = d.Str()
		case "image_url":
			it.ImageURL, err = d.Str()
		case "status":
			var s string
			s, err = d.Str()
			it.Status = catalog.Status(strings.ToUpper(strings.TrimSpace(s)))
		case "price":
			it.Price, err = decodePrice(d)
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	if err != nil {
		return catalog.Item{}, errors.Wrap(err, "decode artwork")
	}

	if it.Status == "" {
		it.Status = catalog.StatusPending
	}
	switch {
	case it.ID <= 0:
		return catalog.Item{}, errors.New("id must be positive")
	case it.SellerID <= 0:
		return catalog.Item{}, errors.Errorf("artwork %d: seller_id must be positive", it.ID)
	case strings.TrimSpace(it.Title) == "":
		return catalog.Item{}, errors.Errorf("artwork %d: title is required", it.ID)
	case it.Price.IsNegative():
		return catalog.Item{}, errors.Errorf("artwork %d: price is negative", it.ID)
	}
	switch it.Status {
	case catalog.StatusPending, catalog.StatusApproved, catalog.StatusRejected:
	default:
		return catalog.Item{}, errors.Errorf("artwork %d: unknown status %q", it.ID, it.Status)
	}
	return it, nil
}

func decodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(string(n))
	default:
		return decimal.Decimal{}, errors.New("price must be a number or string")
	}
}

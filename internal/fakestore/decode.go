package fakestore

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
)

// DecodeProducts parses a JSON array of listing records. Price and rating
// may be null or absent; unknown fields are skipped.
func DecodeProducts(data []byte) ([]product.Product, error) {
	d := jx.DecodeBytes(data)
	if tt := d.Next(); tt != jx.Array {
		return nil, errors.Errorf("expected array, got %s", tt)
	}

	var out []product.Product
	if err := d.Arr(func(d *jx.Decoder) error {
		p, err := decodeProduct(d)
		if err != nil {
			return errors.Wrapf(err, "product %d", len(out))
		}
		out = append(out, p)
		return nil
	}); err != nil {
		return nil, err
	}
	if out == nil {
		out = []product.Product{}
	}
	return out, nil
}

func decodeProduct(d *jx.Decoder) (product.Product, error) {
	var p product.Product
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			id, err := decodeID(d)
			if err != nil {
				return errors.Wrap(err, "id")
			}
			p.ID = id
		case "title":
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "title")
			}
			p.Title = s
		case "price":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := decodeDecimal(d)
			if err != nil {
				return errors.Wrap(err, "price")
			}
			p.Price = decimal.NewNullDecimal(v)
		case "category":
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "category")
			}
			p.Category = s
		case "image":
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "image")
			}
			p.Image = s
		case "rating":
			if d.Next() == jx.Null {
				return d.Null()
			}
			r, err := decodeRating(d)
			if err != nil {
				return errors.Wrap(err, "rating")
			}
			p.Rating = r
		default:
			return d.Skip()
		}
		return nil
	})
	return p, err
}

func decodeRating(d *jx.Decoder) (*product.Rating, error) {
	var r product.Rating
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "rate":
			v, err := decodeDecimal(d)
			if err != nil {
				return errors.Wrap(err, "rate")
			}
			r.Rate = v
		case "count":
			n, err := d.Int()
			if err != nil {
				return errors.Wrap(err, "count")
			}
			r.Count = n
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// decodeID accepts both numeric and string identifiers.
func decodeID(d *jx.Decoder) (string, error) {
	switch tt := d.Next(); tt {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return numString(n), nil
	default:
		return "", errors.Errorf("unexpected %s", tt)
	}
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	n, err := d.Num()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(numString(n))
}

// numString returns the digits of n without the quotes of a string-encoded
// number.
func numString(n jx.Num) string {
	return strings.Trim(n.String(), `"`)
}

package core

import (
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestValidator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	InitValidators(validate, translator)
	return validate, translator
}

func TestICValidation(t *testing.T) {
	validate, translator := newTestValidator()

	type person struct {
		IC string `json:"ic" validate:"omitempty,ic"`
	}

	tests := []struct {
		ic   string
		want bool
	}{
		{ic: "", want: true},
		{ic: "080101105566", want: true},
		{ic: "080101-10-5566", want: true},
		{ic: " 080101-10-5566 ", want: true},
		{ic: "08010110556", want: false},
		{ic: "0801011055667", want: false},
		{ic: "08O101105566", want: false},
		{ic: "080101--105566", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.ic, func(t *testing.T) {
			err := validate.Struct(person{IC: tt.ic})
			if tt.want {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			vErrs, ok := err.(validator.ValidationErrors)
			require.True(t, ok)
			assert.Equal(t, "ic", vErrs[0].Field())
			assert.Equal(t, icText, vErrs[0].Translate(translator))
		})
	}
}

func TestNormalizeIC(t *testing.T) {
	assert.Equal(t, "080101105566", NormalizeIC(" 080101-10-5566 "))
	assert.Equal(t, "080101105566", NormalizeIC("080101 10 5566"))
}

func TestPagination_Clean(t *testing.T) {
	tests := []struct {
		name string
		in   Pagination
		want Pagination
	}{
		{name: "defaults", in: Pagination{}, want: Pagination{Page: 1, PageSize: DefaultPageSize}},
		{name: "max page size", in: Pagination{Page: 3, PageSize: 1000}, want: Pagination{Page: 3, PageSize: MaxPageSize}},
		{name: "kept", in: Pagination{Page: 2, PageSize: 50}, want: Pagination{Page: 2, PageSize: 50}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.in
			p.Clean()
			assert.Equal(t, tt.want, p)
		})
	}

	page := NewPage(Pagination{Page: 2, PageSize: 20}, 41)
	assert.Equal(t, Page{Page: 2, PageSize: 20, Total: 41, TotalPages: 3}, page)
	assert.Equal(t, 20, Pagination{Page: 2, PageSize: 20}.Offset())
}

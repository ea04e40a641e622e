package catalog

import (
	"sort"
	"strings"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

func placeholder(text string) string {
	return "https://via.placeholder.com/400x400/f5f5f5/333333?text=" + text
}

// Served when the source cannot be reached. Never cached.
var fallbackProducts = []domain.Product{
	{
		ID:            "1",
		Name:          "Smartphone X",
		Description:   "Latest smartphone with advanced features",
		Price:         decimal.NewFromInt(29999),
		ImageURL:      placeholder("Smartphone"),
		StockQuantity: 10,
		CategoryID:    "1",
	},
	{
		ID:            "2",
		Name:          "Laptop Pro",
		Description:   "Powerful laptop for professionals",
		Price:         decimal.NewFromInt(79999),
		ImageURL:      placeholder("Laptop"),
		StockQuantity: 5,
		CategoryID:    "1",
	},
	{
		ID:            "3",
		Name:          "Wireless Headphones",
		Description:   "Premium sound quality with noise cancellation",
		Price:         decimal.NewFromInt(8999),
		ImageURL:      placeholder("Headphones"),
		StockQuantity: 15,
		CategoryID:    "1",
	},
	{
		ID:            "4",
		Name:          "Smartwatch Fitness",
		Description:   "Track your health and fitness goals",
		Price:         decimal.NewFromInt(12999),
		ImageURL:      placeholder("Smartwatch"),
		StockQuantity: 8,
		CategoryID:    "1",
	},
}

var fallbackCategories = []domain.Category{
	{ID: "1", Name: "Electronics", ImageURL: placeholder("Electronics")},
	{ID: "2", Name: "Clothing", ImageURL: placeholder("Clothing")},
	{ID: "3", Name: "Home & Kitchen", ImageURL: placeholder("Home")},
	{ID: "4", Name: "Books", ImageURL: placeholder("Books")},
	{ID: "5", Name: "Beauty", ImageURL: placeholder("Beauty")},
	{ID: "6", Name: "Sports", ImageURL: placeholder("Sports")},
}

func fallbackList(categoryID string) []domain.Product {
	out := make([]domain.Product, 0, len(fallbackProducts))
	for _, p := range fallbackProducts {
		if categoryID == "" || p.CategoryID == categoryID {
			out = append(out, p)
		}
	}
	return out
}

func fallbackGet(id string) (*domain.Product, bool) {
	for i := range fallbackProducts {
		if fallbackProducts[i].ID == id {
			p := fallbackProducts[i]
			return &p, true
		}
	}
	return nil, false
}

func fallbackSearch(term string) []domain.Product {
	term = strings.ToLower(term)
	var out []domain.Product
	for _, p := range fallbackProducts {
		if strings.Contains(strings.ToLower(p.Name), term) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func fallbackCategoryList() []domain.Category {
	out := make([]domain.Category, len(fallbackCategories))
	copy(out, fallbackCategories)
	return out
}

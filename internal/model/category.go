package model

// Category — тема обращения; каждой теме соответствует свой канал операторов.
type Category string

const (
	CategorySales    Category = "sales"
	CategorySupport  Category = "support"
	CategoryDelivery Category = "delivery"
)

// Categories returns the categories in the order they are offered to clients.
func Categories() []Category {
	return []Category{CategorySales, CategorySupport, CategoryDelivery}
}

func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories() {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Title — название темы для клиентов и карточек.
func (c Category) Title() string {
	switch c {
	case CategorySales:
		return "Продажи"
	case CategorySupport:
		return "Поддержка"
	case CategoryDelivery:
		return "Доставка"
	}
	return string(c)
}

package domain

import "time"

// NaturalKey — комбинация полей, по которой входящая запись каталога
// считается уже известным событием. Одного upstream id недостаточно:
// каталог переиспользует идентификаторы между локалями, поэтому ключ
// включает название, дату начала, цену и метаданные.
type NaturalKey struct {
	UpstreamSystemID string
	UpstreamID       string
	Name             string
	StartDate        time.Time
	Price            float64
	Slug             string
	CurrencyCode     string
	LocationTitle    string
	ImageURL         string
}

// NaturalKeyOf строит ключ по сохранённому событию.
func NaturalKeyOf(e Event) NaturalKey {
	return NaturalKey{
		UpstreamSystemID: e.Meta.UpstreamSystemID,
		UpstreamID:       e.Meta.UpstreamID,
		Name:             e.Name,
		StartDate:        e.StartDate,
		Price:            e.Price,
		Slug:             e.Meta.Slug,
		CurrencyCode:     e.Meta.CurrencyCode,
		LocationTitle:    e.Meta.LocationTitle,
		ImageURL:         e.Meta.ImageURL,
	}
}

// Matches сравнивает все поля ключа. Дата начала сравнивается как момент
// времени, без учёта часового пояса представления.
func (k NaturalKey) Matches(other NaturalKey) bool {
	return k.UpstreamSystemID == other.UpstreamSystemID &&
		k.UpstreamID == other.UpstreamID &&
		k.Name == other.Name &&
		k.StartDate.Equal(other.StartDate) &&
		k.Price == other.Price &&
		k.Slug == other.Slug &&
		k.CurrencyCode == other.CurrencyCode &&
		k.LocationTitle == other.LocationTitle &&
		k.ImageURL == other.ImageURL
}

package notify

import (
	"fmt"
	"strconv"
	"strings"

	"webook-events-bot/internal/domain"
)

// AdminLevel — уровень важности сервисного уведомления администратору.
type AdminLevel string

const (
	AdminInfo    AdminLevel = "info"
	AdminSuccess AdminLevel = "success"
	AdminWarning AdminLevel = "warning"
	AdminError   AdminLevel = "error"
)

var adminIcons = map[AdminLevel]string{
	AdminInfo:    "ℹ️",
	AdminSuccess: "✅",
	AdminWarning: "⚠️",
	AdminError:   "❌",
}

// EventMessage собирает текст и клавиатуру уведомления о новом событии.
// Тексты на арабском: бот обслуживает арабоязычную аудиторию каталога.
func EventMessage(event domain.Event) (string, [][]domain.Button) {
	var sb strings.Builder
	sb.WriteString("🎉 <b>فعالية جديدة!</b>\n\n")
	sb.WriteString("<b>" + event.Name + "</b>\n")
	if event.Description != "" {
		sb.WriteString(event.Description + "\n")
	}
	sb.WriteString("\n")
	if !event.StartDate.IsZero() {
		sb.WriteString("📅 التاريخ: " + event.StartDate.Format("2006-01-02 15:04") + "\n")
	}
	if event.Meta.LocationTitle != "" {
		sb.WriteString("📍 المكان: " + event.Meta.LocationTitle + "\n")
	}
	sb.WriteString("💰 السعر: " + formatPrice(event.Price, event.Meta.CurrencyCode) + "\n")

	var grid [][]domain.Button

	var links []domain.Button
	if event.BookingLink != "" {
		links = append(links, domain.Button{Label: "احجز الآن 🎟", URL: event.BookingLink})
	}
	if event.Meta.Slug != "" {
		links = append(links, domain.Button{Label: "رابط الفعالية 🔗", URL: domain.EventBaseURL + event.Meta.Slug})
	}
	if len(links) > 0 {
		grid = append(grid, links)
	}

	id := strconv.FormatInt(event.ID, 10)
	grid = append(grid, []domain.Button{
		{Label: "⭐ المفضلة", CallbackData: "favorite_" + id},
		{Label: "⏰ ذكرني", CallbackData: "remind_" + id},
	})
	grid = append(grid, []domain.Button{
		{Label: "🔕 كتم هذه الفئة", CallbackData: "mute_category_" + strconv.FormatInt(event.CategoryID, 10)},
	})

	return sb.String(), grid
}

// formatPrice отдаёт «مجاناً» (бесплатно) для нулевой цены.
func formatPrice(price float64, currency string) string {
	if price == 0 {
		return "مجاناً"
	}
	if currency == "" {
		currency = "SAR"
	}
	return strconv.FormatFloat(price, 'f', -1, 64) + " " + currency
}

// SubscriptionMessage собирает текст и клавиатуру сервисного уведомления
// подписки по его подтипу.
func SubscriptionMessage(notice domain.SubscriptionNotice) (string, [][]domain.Button) {
	switch notice {
	case domain.NoticeWelcome:
		return "🎉 أهلاً بك!\n\nتم تفعيل اشتراكك بنجاح. ستصلك إشعارات بالفعاليات الجديدة حسب اهتماماتك.",
			[][]domain.Button{
				{{Label: "⚙️ إعداد التفضيلات", CallbackData: "setup_preferences"}},
				{{Label: "🎭 عرض الفعاليات", CallbackData: "show_events"}},
			}
	case domain.NoticeRenewal:
		return "⏳ اشتراكك على وشك الانتهاء!\n\nجدّد اشتراكك الآن حتى لا تفوتك الفعاليات الجديدة.",
			[][]domain.Button{
				{{Label: "🔄 تجديد الاشتراك", CallbackData: "renew_subscription"}},
				{{Label: "📋 عرض الباقات", CallbackData: "show_plans"}},
			}
	case domain.NoticeExpired:
		return "😔 انتهى اشتراكك.\n\nجدّد اشتراكك لاستعادة إشعارات الفعاليات.",
			[][]domain.Button{
				{{Label: "🔄 تجديد الاشتراك", CallbackData: "renew_subscription"}},
				{{Label: "💎 مزايا الاشتراك", CallbackData: "subscription_benefits"}},
			}
	case domain.NoticeUpgrade:
		return "💎 ارتقِ باشتراكك!\n\nاحصل على إشعارات أسرع وفعاليات حصرية مع الباقة المميزة.",
			[][]domain.Button{
				{{Label: "⬆️ ترقية الاشتراك", CallbackData: "upgrade_subscription"}},
				{{Label: "📊 مقارنة الباقات", CallbackData: "compare_plans"}},
			}
	default:
		return "", nil
	}
}

// AdminMessage добавляет иконку уровня к тексту для администратора.
func AdminMessage(level AdminLevel, text string) string {
	icon, ok := adminIcons[level]
	if !ok {
		icon = adminIcons[AdminInfo]
	}
	return fmt.Sprintf("%s %s", icon, text)
}

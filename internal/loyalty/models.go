package loyalty

import "time"

// Levels, lowest first
const (
	LevelBronze   = "bronze"
	LevelSilver   = "silver"
	LevelGold     = "gold"
	LevelPlatinum = "platinum"
	LevelDiamond  = "diamond"
)

// History actions
const (
	ActionPurchase   = "purchase"
	ActionRenewal    = "renewal"
	ActionDailyLogin = "daily_login"
	ActionBirthday   = "birthday"
	ActionRedeem     = "redeem"
	ActionAdmin      = "admin"
)

type tier struct {
	Level     string
	Threshold int
	Discount  int
	Title     string
}

// tiers is ordered by threshold; level is the highest tier whose threshold <= total points
var tiers = []tier{
	{LevelBronze, 0, 0, "🥉 برنزی"},
	{LevelSilver, 200, 5, "🥈 نقره‌ای"},
	{LevelGold, 500, 10, "🥇 طلایی"},
	{LevelPlatinum, 1000, 15, "💎 پلاتینیوم"},
	{LevelDiamond, 2000, 20, "💠 الماس"},
}

// Points is a user's loyalty account
type Points struct {
	UserID            int64
	TotalPoints       int
	CurrentPoints     int
	Level             string
	LastDailyLogin    string // 2006-01-02
	Birthday          string // 01-02
	LastBirthdayBonus int    // year the birthday reward was last granted
}

// HistoryEntry is one point delta
type HistoryEntry struct {
	ID          int64
	UserID      int64
	Points      int
	Action      string
	Description string
	CreatedAt   time.Time
}

// LevelFor returns the tier reached with total lifetime points
func LevelFor(total int) string {
	level := LevelBronze
	for _, t := range tiers {
		if total >= t.Threshold {
			level = t.Level
		}
	}
	return level
}

// DiscountPercent returns the purchase discount granted by level
func DiscountPercent(level string) int {
	for _, t := range tiers {
		if t.Level == level {
			return t.Discount
		}
	}
	return 0
}

// LevelTitle returns the display name of level
func LevelTitle(level string) string {
	for _, t := range tiers {
		if t.Level == level {
			return t.Title
		}
	}
	return level
}

// NextLevel returns the next tier above total and the points still missing; "" at the top
func NextLevel(total int) (string, int) {
	for _, t := range tiers {
		if total < t.Threshold {
			return t.Level, t.Threshold - total
		}
	}
	return "", 0
}

// ApplyDiscount returns price reduced by the level's discount, rounded down to whole Toman
func ApplyDiscount(price int64, level string) int64 {
	return price - price*int64(DiscountPercent(level))/100
}

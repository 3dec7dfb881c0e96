package keyboard

import (
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"vpn-shop-bot/internal/bot/constants"
	"vpn-shop-bot/internal/storage"
)

// BuildUserKeyboard creates the main menu
func BuildUserKeyboard() *telego.ReplyKeyboardMarkup {
	return tu.Keyboard(
		tu.KeyboardRow(
			tu.KeyboardButton(constants.BtnBuy),
			tu.KeyboardButton(constants.BtnServices),
		),
		tu.KeyboardRow(
			tu.KeyboardButton(constants.BtnWallet),
			tu.KeyboardButton(constants.BtnLoyalty),
		),
		tu.KeyboardRow(
			tu.KeyboardButton(constants.BtnHelp),
		),
	).WithResizeKeyboard().WithIsPersistent()
}

// BuildAdminKeyboard creates the admin menu on top of the user one
func BuildAdminKeyboard() *telego.ReplyKeyboardMarkup {
	return tu.Keyboard(
		tu.KeyboardRow(
			tu.KeyboardButton(constants.BtnBuy),
			tu.KeyboardButton(constants.BtnServices),
		),
		tu.KeyboardRow(
			tu.KeyboardButton(constants.BtnWallet),
			tu.KeyboardButton(constants.BtnLoyalty),
		),
		tu.KeyboardRow(
			tu.KeyboardButton(constants.BtnPending),
			tu.KeyboardButton(constants.BtnStats),
		),
		tu.KeyboardRow(
			tu.KeyboardButton(constants.BtnBroadcast),
			tu.KeyboardButton(constants.BtnBackupDB),
		),
	).WithResizeKeyboard().WithIsPersistent()
}

// BuildCancelKeyboard is shown while a multi-step flow waits for input
func BuildCancelKeyboard() *telego.ReplyKeyboardMarkup {
	return tu.Keyboard(
		tu.KeyboardRow(tu.KeyboardButton(constants.BtnCancel)),
	).WithResizeKeyboard()
}

// BuildWalletKeyboard creates the wallet actions
func BuildWalletKeyboard() *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("➕ افزایش موجودی").WithCallbackData(constants.CbWalletTopUp),
			tu.InlineKeyboardButton("📜 تراکنش‌ها").WithCallbackData(constants.CbWalletHistory),
		),
	)
}

// BuildReviewKeyboard creates approve/reject buttons for a pending transaction
func BuildReviewKeyboard(txID int64) *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("✅ تایید").WithCallbackData(fmt.Sprintf("%s%d", constants.CbApproveTx, txID)),
			tu.InlineKeyboardButton("❌ رد").WithCallbackData(fmt.Sprintf("%s%d", constants.CbRejectTx, txID)),
		),
	)
}

// BuildPlansKeyboard lists plans; each button carries prefix+planID
func BuildPlansKeyboard(plans []*storage.Plan, prefix string, label func(*storage.Plan) string) *telego.InlineKeyboardMarkup {
	rows := make([][]telego.InlineKeyboardButton, 0, len(plans))
	for _, p := range plans {
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(label(p)).WithCallbackData(fmt.Sprintf("%s%d", prefix, p.ID)),
		))
	}
	return &telego.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// BuildConfirmBuyKeyboard asks the user to confirm a purchase
func BuildConfirmBuyKeyboard(planID int64) *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("✅ پرداخت از کیف پول").WithCallbackData(fmt.Sprintf("%s%d", constants.CbBuyPrefix, planID)),
			tu.InlineKeyboardButton("❌ انصراف").WithCallbackData(constants.CbCancelBuy),
		),
	)
}

// BuildOrdersKeyboard lists a user's services
func BuildOrdersKeyboard(orders []*storage.Order, label func(*storage.Order) string) *telego.InlineKeyboardMarkup {
	rows := make([][]telego.InlineKeyboardButton, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(label(o)).WithCallbackData(fmt.Sprintf("%s%d", constants.CbOrderPrefix, o.ID)),
		))
	}
	return &telego.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// BuildOrderKeyboard creates actions for one service
func BuildOrderKeyboard(orderID int64, renewable bool) *telego.InlineKeyboardMarkup {
	first := tu.InlineKeyboardRow(
		tu.InlineKeyboardButton("🔳 QR کد").WithCallbackData(fmt.Sprintf("%s%d", constants.CbQRPrefix, orderID)),
	)
	if renewable {
		first = append(first, tu.InlineKeyboardButton("🔄 تمدید").WithCallbackData(fmt.Sprintf("%s%d", constants.CbRenewPrefix, orderID)))
	}
	return tu.InlineKeyboard(
		first,
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("◀️ بازگشت").WithCallbackData(constants.CbBackToOrders),
		),
	)
}

// BuildRenewPlansKeyboard lists plans for renewing orderID
func BuildRenewPlansKeyboard(orderID int64, plans []*storage.Plan, label func(*storage.Plan) string) *telego.InlineKeyboardMarkup {
	rows := make([][]telego.InlineKeyboardButton, 0, len(plans)+1)
	for _, p := range plans {
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(label(p)).WithCallbackData(fmt.Sprintf("%s%d_%d", constants.CbRenewPlan, orderID, p.ID)),
		))
	}
	rows = append(rows, tu.InlineKeyboardRow(
		tu.InlineKeyboardButton("◀️ بازگشت").WithCallbackData(fmt.Sprintf("%s%d", constants.CbOrderPrefix, orderID)),
	))
	return &telego.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// BuildLoyaltyKeyboard shows the history button
func BuildLoyaltyKeyboard() *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("📜 تاریخچه امتیاز").WithCallbackData(constants.CbLoyaltyRecent),
		),
	)
}

// BuildBroadcastConfirmKeyboard asks the admin to confirm a broadcast
func BuildBroadcastConfirmKeyboard() *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("✅ ارسال").WithCallbackData(constants.CbBroadcastConfirm),
			tu.InlineKeyboardButton("❌ انصراف").WithCallbackData(constants.CbBroadcastCancel),
		),
	)
}

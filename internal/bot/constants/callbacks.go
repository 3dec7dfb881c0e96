package constants

// Commands
const (
	CmdStart    = "start"
	CmdHelp     = "help"
	CmdID       = "id"
	CmdWallet   = "wallet"
	CmdBuy      = "buy"
	CmdServices = "services"
	CmdPoints   = "points"
	CmdBirthday = "birthday"
	CmdCancel   = "cancel"

	// Admin
	CmdPending  = "pending"
	CmdCredit   = "credit"
	CmdStats    = "stats"
	CmdAddPanel = "addpanel"
	CmdAddPlan  = "addplan"
	CmdPanels   = "panels"
	CmdRevoke   = "revoke"
	CmdBackup   = "backup"
)

// Callback Prefixes and Data
const (
	// Wallet
	CbWalletTopUp   = "wallet_topup"
	CbWalletHistory = "wallet_history"
	CbApproveTx     = "approve_tx_"
	CbRejectTx      = "reject_tx_"

	// Shop
	CbPlanPrefix    = "plan_"
	CbBuyPrefix     = "buy_"
	CbCancelBuy     = "cancel_buy"
	CbOrderPrefix   = "order_"
	CbRenewPrefix   = "renew_"     // renew_<orderID>: choose plan
	CbRenewPlan     = "renewplan_" // renewplan_<orderID>_<planID>
	CbQRPrefix      = "qr_"
	CbBackToOrders  = "back_to_orders"
	CbLoyaltyRecent = "loyalty_history"

	// Broadcast
	CbBroadcastConfirm = "broadcast_confirm"
	CbBroadcastCancel  = "broadcast_cancel"
)

// User States
const (
	StateAwaitingDepositAmount    = "awaiting_deposit_amount"
	StateAwaitingReceipt          = "awaiting_receipt"
	StateAwaitingBroadcastMessage = "awaiting_broadcast_message"
)

// Button Texts
const (
	BtnBuy      = "🛒 خرید سرویس"
	BtnServices = "📱 سرویس‌های من"
	BtnWallet   = "💰 کیف پول"
	BtnLoyalty  = "⭐ امتیازها"
	BtnHelp     = "❓ راهنما"

	BtnPending   = "🧾 تراکنش‌های در انتظار"
	BtnStats     = "📊 آمار"
	BtnBroadcast = "📢 پیام همگانی"
	BtnBackupDB  = "💾 پشتیبان‌گیری"
	BtnCancel    = "❌ انصراف"
)

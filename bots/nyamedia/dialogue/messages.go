package dialogue

const (
	msgPrivateOnly       = "请在私聊中使用此命令。"
	msgNoPermission      = "抱歉，您没有权限使用这个命令。"
	msgUnknownCommand    = "无效的bot命令，请使用 /help 查看可用命令。"
	msgCancelled         = "操作已取消。"
	msgStaleButton       = "该按钮已失效，请重新开始。"
	msgNotRegistered     = "您还没有注册，请先使用 /register 注册。"
	msgAlreadyRegistered = "您已经注册过了。"
	msgAskUsername       = "请输入您的用户名："
	msgUsernameSlash     = "用户名不能以 / 开头，请重新输入。"
	msgUsernameInvalid   = "无效的用户名，请重新输入。"
	msgRegistered        = "注册成功。"
	msgAskSource         = "请选择您的数据来源"
	msgInvalidSource     = "无效的数据来源，请重新选择。"
	msgAskMediaType      = "请选择您要请求的媒体类型"
	msgInvalidMediaType  = "无效的媒体类型，请重新选择。"
	msgAskMediaIDFormat  = "请输入您要从 %s 请求的 %s ID: "
	msgMediaIDDigits     = "媒体ID应为纯数字，请重新输入。"
	msgUseButtons        = "请点击上方按钮进行选择，或使用 /cancel 取消。"
	msgMediaNotFound     = "未找到该媒体，请检查ID后重新使用 /request。"
	msgRequestSubmitted  = "请求已提交，请耐心等待管理员处理。"
	msgDuplicateRequest  = "该媒体已经被请求过了。"
	msgDeleteWarning     = "此操作将永久删除您的媒体服务器账号。\n输入 CONFIRM 确认删除，输入其他内容取消。"
	msgDeleted           = "账号已删除。"
	msgNoAccount         = "您的注册信息中没有关联的媒体服务器账号，请联系管理员。"
	msgPasswordReset     = "密码已重置为空，请登录后尽快设置新密码。"
	msgCheckinPrivate    = "本站无需每日签到。"
	msgCheckout          = "本站无需签退。"
	msgCheckinEarly      = "抱歉，您不是我们的常旅客会员，我们无法在当地时间16:00之前为您办理登记入住。"
	msgCheckinFull       = "抱歉，本酒店今日房满。"
	msgRequestListCap    = "媒体请求列表"
	msgContactAdmin      = "请联系管理员。"
	msgSeeGroupIntro     = "请查看群简介。"

	msgHelp = "可用命令：\n" +
		"/help - 显示此帮助\n" +
		"/register - 注册新用户\n" +
		"/request - 请求新媒体\n" +
		"/resetpassword - 重置密码\n" +
		"/deleteuser - 删除账号\n" +
		"/cancel - 取消当前操作"

	btnConfirm = "确认"
	btnCancel  = "取消"
)

// Choice keys of the inline buttons the engine sends.
const (
	KeySource    = "source"
	KeyMediaType = "mtype"
	KeyConfirm   = "confirm"
	KeyCancel    = "cancel"
)

package routers

import (
	"Storefront/cache"
	"Storefront/cart"
	"Storefront/currency"
	"Storefront/handlers"
	"Storefront/i18n"
	"Storefront/jwt"
	"Storefront/logger"
	"Storefront/middleware"
	"Storefront/otp"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Dependencies are the services the HTTP layer is wired to.
type Dependencies struct {
	DB     *gorm.DB
	Log    *zap.Logger
	Tokens *jwt.Manager
	Rates  handlers.RateEditor
	// Currencies is the configured table; it decides which codes are accepted.
	Currencies *currency.Rates
	Carts      *cart.Store
	Catalog    *cache.Catalog
	OTP        *otp.Machine
	Sessions   otp.SessionStore
	Checkout   *handlers.Checkout

	OriginProvince string
	UploadDir      string
	AllowOrigins   []string
}

func SetupRouters(deps Dependencies) (*gin.Engine, error) {
	db := deps.DB
	if err := handlers.RegisterValidators(deps.Currencies.Supported); err != nil {
		return nil, err
	}

	//建立Gin路由器
	router := gin.New()
	router.Use(
		middleware.RequestIDMiddleware(),
		logger.GinMiddleware(deps.Log),
		logger.Recovery(deps.Log),
		middleware.CORSMiddleware(deps.AllowOrigins),
		i18n.Middleware(),
	)
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	//設定商品圖片靜態資源路徑
	router.Static("/uploads", deps.UploadDir)

	api := router.Group("/api/v1")
	////無須權限，使用中間件檢查是否登入
	api.Use(middleware.AuthMiddleware(db, deps.Tokens))
	{
		//查詢商品列表
		api.GET("/products", func(context *gin.Context) {
			handlers.GetProductListHandler(context, deps.Catalog, deps.Rates)
		})
		//搜尋完整包含標籤的所有商品
		api.GET("/products/categories", func(context *gin.Context) {
			handlers.GetProductsFromCategoriesHandler(context, deps.Catalog, deps.Rates)
		})
		//查詢商品詳細資料
		api.GET("/products/:productID", func(context *gin.Context) {
			handlers.GetProductDataHandler(context, db, deps.Rates)
		})
		api.GET("/categories", func(context *gin.Context) {
			handlers.GetCategoryListHandler(context, db)
		})
		api.GET("/currencies", func(context *gin.Context) {
			handlers.GetCurrenciesHandler(context, deps.Rates)
		})
		api.GET("/shipping/provinces", handlers.GetProvinceListHandler)
		api.POST("/shipping/quote", func(context *gin.Context) {
			handlers.ShippingQuoteHandler(context, deps.Rates, deps.OriginProvince)
		})

		//手機驗證碼登入
		api.GET("/auth/otp", func(context *gin.Context) {
			handlers.GetOTPStateHandler(context, deps.OTP, deps.Sessions)
		})
		api.POST("/auth/otp/request", func(context *gin.Context) {
			handlers.RequestOTPHandler(context, deps.OTP, deps.Sessions)
		})
		api.POST("/auth/otp/resend", func(context *gin.Context) {
			handlers.ResendOTPHandler(context, deps.OTP, deps.Sessions)
		})
		api.POST("/auth/otp/back", func(context *gin.Context) {
			handlers.BackOTPHandler(context, deps.OTP, deps.Sessions)
		})
		api.POST("/auth/otp/verify", func(context *gin.Context) {
			handlers.VerifyOTPHandler(context, db, deps.Tokens, deps.OTP, deps.Sessions)
		})
		//管理員帳號密碼登入
		api.POST("/login", func(context *gin.Context) {
			handlers.LoginHandler(context, db, deps.Tokens)
		})

		//新增商品至購物車
		api.POST("/carts/add", func(context *gin.Context) {
			handlers.AddToCartHandler(context, db, deps.Carts, deps.Rates)
		})
		//更新購物車商品數量
		api.POST("/carts/update", func(context *gin.Context) {
			handlers.UpdateCartItemQuantityHandler(context, db, deps.Carts)
		})
		//重新檢查購物車價格與庫存
		api.POST("/carts/revalidate", func(context *gin.Context) {
			handlers.RevalidateCartHandler(context, db, deps.Carts)
		})
		//刪除購物車商品
		api.DELETE("/carts/:variantID", func(context *gin.Context) {
			handlers.DeleteCartItemHandler(context, db, deps.Carts)
		})
		//查詢購物車商品
		api.GET("/carts", func(context *gin.Context) {
			handlers.GetCartHandler(context, db, deps.Carts)
		})
		//清除購物車商品
		api.DELETE("/carts", func(context *gin.Context) {
			handlers.ClearCartHandler(context, db, deps.Carts)
		})

		//金流回呼
		api.GET("/payments/callback", deps.Checkout.PaymentCallbackHandler)

		////需要登入，使用中間件檢查是否登入
		loginRequired := api.Group("/user")
		loginRequired.Use(middleware.CheckLoginMiddleware())
		{
			//查詢使用者資料
			loginRequired.GET("/profile", func(context *gin.Context) {
				handlers.GetUserProfileHandler(context, db)
			})
			//修改使用者資料
			loginRequired.PATCH("/profile/edit", func(context *gin.Context) {
				handlers.UpdateUserProfileHandler(context, db)
			})
			loginRequired.GET("/addresses", func(context *gin.Context) {
				handlers.GetAddressListHandler(context, db)
			})
			loginRequired.POST("/addresses", func(context *gin.Context) {
				handlers.CreateAddressHandler(context, db)
			})
			loginRequired.PATCH("/addresses/:addressID", func(context *gin.Context) {
				handlers.UpdateAddressHandler(context, db)
			})
			loginRequired.DELETE("/addresses/:addressID", func(context *gin.Context) {
				handlers.DeleteAddressHandler(context, db)
			})
			//合併匿名和使用者購物車(登入後呼叫)
			loginRequired.POST("/carts/merge", func(context *gin.Context) {
				handlers.MergeCartHandler(context, db, deps.Carts)
			})
			//送出訂單並導向付款
			loginRequired.POST("/orders", deps.Checkout.PlaceOrderHandler)
			//查詢訂單列表
			loginRequired.GET("/orders", func(context *gin.Context) {
				handlers.GetOrderListHandler(context, db)
			})
			//查詢訂單詳細資訊
			loginRequired.GET("/orders/:orderID", func(context *gin.Context) {
				handlers.GetOrderDataHandler(context, db)
			})
			//重新付款
			loginRequired.POST("/orders/:orderID/pay", deps.Checkout.PayOrderHandler)
			loginRequired.POST("/products/:productID/reviews", func(context *gin.Context) {
				handlers.CreateReviewHandler(context, db)
			})
			loginRequired.GET("/bookmarks", func(context *gin.Context) {
				handlers.GetBookmarkListHandler(context, db)
			})
			loginRequired.POST("/bookmarks/:productID", func(context *gin.Context) {
				handlers.ToggleBookmarkHandler(context, db)
			})
			//登出
			loginRequired.POST("/logout", func(context *gin.Context) {
				handlers.LogOutHandler(context, db)
			})
		}

		////需要admin身分，使用中間件檢查是否登入及admin權限
		adminRequired := api.Group("/admin")
		adminRequired.Use(middleware.CheckLoginMiddleware(), middleware.CheckAdminPermissionMiddleware())
		{
			adminRequired.GET("/dashboard", func(context *gin.Context) {
				handlers.GetDashboardHandler(context, db)
			})
			//查詢使用者列表
			adminRequired.GET("/users", func(context *gin.Context) {
				handlers.GetUserListHandler(context, db)
			})
			//上傳商品圖片
			adminRequired.POST("/image", func(context *gin.Context) {
				handlers.UploadImageHandler(context, deps.UploadDir)
			})
			//查詢商品完整資料
			adminRequired.GET("/products/:productID", func(context *gin.Context) {
				handlers.GetProductAllDataHandler(context, db)
			})
			//新增商品
			adminRequired.POST("/products", func(context *gin.Context) {
				handlers.CreateProductHandler(context, db, deps.Catalog)
			})
			//修改商品
			adminRequired.PATCH("/products/:productID", func(context *gin.Context) {
				handlers.UpdateProductHandler(context, db, deps.Catalog)
			})
			//刪除商品
			adminRequired.DELETE("/products/:productID", func(context *gin.Context) {
				handlers.DeleteProductHandler(context, db, deps.Catalog)
			})
			//查詢商品標籤列表
			adminRequired.GET("/categories", func(context *gin.Context) {
				handlers.GetCategoryListHandler(context, db)
			})
			//刪除商品標籤
			adminRequired.DELETE("/categories/:categoryID", func(context *gin.Context) {
				handlers.DeleteCategoryHandler(context, db, deps.Catalog)
			})
			adminRequired.GET("/orders", func(context *gin.Context) {
				handlers.GetAllOrdersHandler(context, db)
			})
			adminRequired.PATCH("/orders/:orderID/status", func(context *gin.Context) {
				handlers.UpdateOrderStatusHandler(context, db, deps.Catalog, deps.Checkout.Gateway)
			})
			adminRequired.GET("/reviews", func(context *gin.Context) {
				handlers.GetReviewListHandler(context, db)
			})
			adminRequired.PATCH("/reviews/:reviewID/approve", func(context *gin.Context) {
				handlers.ApproveReviewHandler(context, db)
			})
			adminRequired.DELETE("/reviews/:reviewID", func(context *gin.Context) {
				handlers.DeleteReviewHandler(context, db)
			})
			adminRequired.GET("/currencies", func(context *gin.Context) {
				handlers.GetCurrenciesHandler(context, deps.Rates)
			})
			adminRequired.PUT("/currencies", func(context *gin.Context) {
				handlers.UpdateCurrencyRateHandler(context, deps.Rates)
			})
			adminRequired.DELETE("/currencies", func(context *gin.Context) {
				handlers.ResetCurrencyRatesHandler(context, deps.Rates)
			})
		}
	}

	return router, nil
}
